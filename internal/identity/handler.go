// internal/identity/handler.go
package identity

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
	r.Post("/account/register", func(w http.ResponseWriter, req *http.Request) {
		var cmd RegisterCommand
		if !decode(w, req, &cmd) {
			return
		}
		user, err := svc.Register(req.Context(), cmd)
		if handled(w, log, err) {
			return
		}
		writeJSON(w, map[string]string{"id": user.ID, "email": user.Email}, http.StatusCreated)
	})

	r.Post("/account/confirm", func(w http.ResponseWriter, req *http.Request) {
		var cmd ConfirmCommand
		if !decode(w, req, &cmd) {
			return
		}
		if handled(w, log, svc.Confirm(req.Context(), cmd)) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/account/forgot", func(w http.ResponseWriter, req *http.Request) {
		var cmd ForgotCommand
		if !decode(w, req, &cmd) {
			return
		}
		if handled(w, log, svc.Forgot(req.Context(), cmd)) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/account/reset", func(w http.ResponseWriter, req *http.Request) {
		var cmd ResetCommand
		if !decode(w, req, &cmd) {
			return
		}
		if handled(w, log, svc.Reset(req.Context(), cmd)) {
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/account/login", func(w http.ResponseWriter, req *http.Request) {
		var cmd LoginCommand
		if !decode(w, req, &cmd) {
			return
		}
		res, err := svc.Login(req.Context(), cmd)
		if handled(w, log, err) {
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    res.Token,
			Path:     "/",
			MaxAge:   res.ExpiresIn,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, res, http.StatusOK)
	})

	r.Post("/account/two-factor-providers", func(w http.ResponseWriter, req *http.Request) {
		var cmd TwoFactorProvidersCommand
		if !decode(w, req, &cmd) {
			return
		}
		providers, err := svc.GetTwoFactorProviders(req.Context(), cmd)
		if handled(w, log, err) {
			return
		}
		writeJSON(w, map[string][]string{"providers": providers}, http.StatusOK)
	})
}

func decode(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeJSON(w, map[string]string{"error": "request body is not valid json"}, http.StatusBadRequest)
		return false
	}
	return true
}

// handled writes the error response when err is non-nil and reports whether
// it did. Validation failures map to 400, everything else to 500.
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
