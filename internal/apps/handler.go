// internal/apps/handler.go
package apps

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gomsle/pkg/middleware"
	"gomsle/pkg/problems"
	"gomsle/pkg/validation"
)

func RegisterRoutes(r chi.Router, svc *Service, log *zap.SugaredLogger) {
	r.Post("/applications", func(w http.ResponseWriter, req *http.Request) {
		var cmd CreateApplicationCommand
		if !decode(w, req, &cmd) {
			return
		}
		app, err := svc.CreateApplication(req.Context(), middleware.PrincipalFrom(req.Context()), cmd)
		if handled(w, log, err) {
			return
		}
		writeJSON(w, applicationResponse(app), http.StatusCreated)
	})

	r.Post("/applications/oidc-providers", func(w http.ResponseWriter, req *http.Request) {
		var cmd ProviderCommand
		if !decode(w, req, &cmd) {
			return
		}
		cfg, err := svc.CreateOidcProvider(req.Context(), middleware.PrincipalFrom(req.Context()), cmd)
		if handled(w, log, err) {
			return
		}
		writeJSON(w, providerResponse(cfg), http.StatusCreated)
	})

	r.Get("/accounts/{accountId}/applications", func(w http.ResponseWriter, req *http.Request) {
		list, err := svc.ApplicationsForAccount(req.Context(), middleware.PrincipalFrom(req.Context()), chi.URLParam(req, "accountId"))
		if handled(w, log, err) {
			return
		}
		out := make([]map[string]any, 0, len(list))
		for i := range list {
			out = append(out, applicationResponse(&list[i]))
		}
		writeJSON(w, out, http.StatusOK)
	})

	r.Get("/applications/{id}/oidc-providers", func(w http.ResponseWriter, req *http.Request) {
		list, err := svc.ProvidersForApplication(req.Context(), middleware.PrincipalFrom(req.Context()), chi.URLParam(req, "id"))
		if handled(w, log, err) {
			return
		}
		out := make([]map[string]any, 0, len(list))
		for i := range list {
			out = append(out, providerResponse(&list[i]))
		}
		writeJSON(w, out, http.StatusOK)
	})

	r.Put("/applications/oidc-providers/{id}", func(w http.ResponseWriter, req *http.Request) {
		var cmd ProviderCommand
		if !decode(w, req, &cmd) {
			return
		}
		cmd.ID = chi.URLParam(req, "id")
		cfg, err := svc.EditOidcProvider(req.Context(), middleware.PrincipalFrom(req.Context()), cmd)
		if handled(w, log, err) {
			return
		}
		writeJSON(w, providerResponse(cfg), http.StatusOK)
	})
}

func applicationResponse(app *Application) map[string]any {
	return map[string]any{
		"id":              app.ID,
		"accountId":       app.AccountID,
		"displayName":     app.DisplayName,
		"autoProvision":   app.AutoProvision,
		"enableProvision": app.EnableProvision,
	}
}

// providerResponse never echoes the client secret.
func providerResponse(cfg *OidcProviderConfig) map[string]any {
	return map[string]any{
		"id":            cfg.ID,
		"applicationId": cfg.ApplicationID,
		"name":          cfg.Name,
		"authorityUrl":  cfg.AuthorityUrl,
		"clientId":      cfg.ClientID,
		"responseType":  cfg.ResponseType,
		"scopes":        cfg.Scopes,
		"isDefault":     cfg.IsDefault,
		"isVisible":     cfg.IsVisible,
	}
}

func decode(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeJSON(w, map[string]string{"error": "request body is not valid json"}, http.StatusBadRequest)
		return false
	}
	return true
}

func handled(w http.ResponseWriter, log *zap.SugaredLogger, err error) bool {
	if err == nil {
		return false
	}
	if errs, ok := validation.AsErrors(err); ok {
		writeJSON(w, map[string]any{"errors": errs}, http.StatusBadRequest)
		return true
	}
	log.Errorw("command failed", "err", err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"type": problems.Type("internal-error"), "title": "Internal error"})
	return true
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
