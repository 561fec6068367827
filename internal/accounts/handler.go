// internal/accounts/handler.go
package accounts

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
	r.Post("/accounts", func(w http.ResponseWriter, req *http.Request) {
		var cmd CreateCommand
		if !decode(w, req, &cmd) {
			return
		}
		account, err := svc.Create(req.Context(), middleware.PrincipalFrom(req.Context()), cmd)
		if handled(w, log, err) {
			return
		}
		writeJSON(w, map[string]string{"id": account.ID, "name": account.Name}, http.StatusCreated)
	})

	r.Post("/accounts/invite", func(w http.ResponseWriter, req *http.Request) {
		var cmd InviteCommand
		if !decode(w, req, &cmd) {
			return
		}
		inv, err := svc.Invite(req.Context(), middleware.PrincipalFrom(req.Context()), cmd)
		if handled(w, log, err) {
			return
		}
		// Token travels only in the emailed link.
		writeJSON(w, map[string]string{
			"id":        inv.ID,
			"accountId": inv.AccountID,
			"email":     inv.Email,
			"role":      string(inv.Role),
		}, http.StatusCreated)
	})

	r.Get("/accounts/{id}/members", func(w http.ResponseWriter, req *http.Request) {
		members, err := svc.Members(req.Context(), middleware.PrincipalFrom(req.Context()), chi.URLParam(req, "id"))
		if handled(w, log, err) {
			return
		}
		out := make([]map[string]string, 0, len(members))
		for _, m := range members {
			out = append(out, map[string]string{
				"accountId": m.AccountID,
				"userId":    m.UserID,
				"role":      string(m.Role),
			})
		}
		writeJSON(w, out, http.StatusOK)
	})

	r.Post("/accounts/invitations/accept", func(w http.ResponseWriter, req *http.Request) {
		var cmd AcceptCommand
		if !decode(w, req, &cmd) {
			return
		}
		m, err := svc.AcceptInvitation(req.Context(), middleware.PrincipalFrom(req.Context()), cmd)
		if handled(w, log, err) {
			return
		}
		writeJSON(w, map[string]string{
			"accountId": m.AccountID,
			"userId":    m.UserID,
			"role":      string(m.Role),
		}, http.StatusOK)
	})
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
