// internal/oauth/handler.go
package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gomsle/pkg/config"
	"gomsle/pkg/middleware"
)

// SessionTokens extracts the revocable token id from a raw session token.
// Implemented by the identity service.
type SessionTokens interface {
	SessionJTI(ctx context.Context, raw string) (string, time.Duration, error)
}

func RegisterRoutes(r chi.Router, cfg config.Config, engine *Engine, sessions SessionTokens, log *zap.SugaredLogger) {
	r.Get("/connect/authorize", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		ar := AuthorizeRequest{
			RequestID:    q.Get("request_id"),
			ClientID:     q.Get("client_id"),
			RedirectURI:  q.Get("redirect_uri"),
			ResponseType: q.Get("response_type"),
			Scope:        q.Get("scope"),
			State:        q.Get("state"),
			Nonce:        q.Get("nonce"),
		}
		principal := middleware.PrincipalFrom(req.Context())

		out := engine.Authorize(req.Context(), principal, ar)
		switch out.Phase {
		case PhaseChallengePending:
			resume := cfg.Issuer + "/connect/authorize?request_id=" + url.QueryEscape(out.RequestID)
			login, err := url.Parse(cfg.LoginURL)
			if err != nil {
				writeJSON(w, map[string]string{"error": ErrInvalidRequest, "error_description": "login endpoint is misconfigured"}, http.StatusInternalServerError)
				return
			}
			lq := login.Query()
			lq.Set("returnUrl", resume)
			login.RawQuery = lq.Encode()
			http.Redirect(w, req, login.String(), http.StatusFound)
		case PhaseAuthenticated:
			redirectWithParams(w, req, out.RedirectURI, url.Values{"code": {out.Code}, "state": {out.State}})
		default:
			denied := out.Denied
			if denied == nil {
				denied = &Denial{Code: ErrInvalidRequest, Description: "the authorization request could not be processed"}
			}
			// Parameter errors that invalidate the redirect target itself
			// must not be forwarded to it.
			if denied.Code == ErrInvalidRequest || denied.Code == ErrInvalidClient {
				writeJSON(w, denied.Map(), http.StatusBadRequest)
				return
			}
			v := url.Values{"error": {denied.Code}, "error_description": {denied.Description}}
			if ar.State != "" {
				v.Set("state", ar.State)
			}
			redirectWithParams(w, req, ar.RedirectURI, v)
		}
	})

	r.Post("/connect/token", func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil {
			writeJSON(w, map[string]string{"error": ErrInvalidRequest, "error_description": "request body is not form encoded"}, http.StatusBadRequest)
			return
		}
		tr := TokenRequest{
			GrantType:    req.PostFormValue("grant_type"),
			Code:         req.PostFormValue("code"),
			RedirectURI:  req.PostFormValue("redirect_uri"),
			ClientID:     req.PostFormValue("client_id"),
			ClientSecret: req.PostFormValue("client_secret"),
			RefreshToken: req.PostFormValue("refresh_token"),
		}
		if id, secret, ok := req.BasicAuth(); ok {
			tr.ClientID, tr.ClientSecret = id, secret
		}

		set, denied := engine.Exchange(req.Context(), tr)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		if denied != nil {
			status := http.StatusBadRequest
			if denied.Code == ErrInvalidClient {
				status = http.StatusUnauthorized
			}
			writeJSON(w, denied.Map(), status)
			return
		}
		writeJSON(w, set, http.StatusOK)
	})

	r.Get("/connect/logout", func(w http.ResponseWriter, req *http.Request) {
		raw := sessionToken(req)
		if raw != "" {
			if jti, remaining, err := sessions.SessionJTI(req.Context(), raw); err == nil {
				if err := engine.Logout(req.Context(), jti, remaining); err != nil {
					log.Errorw("logout", "err", err)
				}
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
		})
		http.Redirect(w, req, logoutTarget(cfg, req.URL.Query().Get("post_logout_redirect_uri")), http.StatusFound)
	})
}

// logoutTarget keeps the post-logout redirect on this deployment: relative
// paths and the configured issuer or login origins pass, anything else
// falls back to "/".
func logoutTarget(cfg config.Config, target string) string {
	if target == "" {
		return "/"
	}
	if target[0] == '/' {
		// "//host" and "/\host" are treated as scheme-relative by browsers.
		if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
			return "/"
		}
		return target
	}
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() {
		return "/"
	}
	for _, trusted := range []string{cfg.Issuer, cfg.LoginURL} {
		if t, err := url.Parse(trusted); err == nil && u.Scheme == t.Scheme && u.Host == t.Host {
			return target
		}
	}
	return "/"
}

func redirectWithParams(w http.ResponseWriter, req *http.Request, target string, params url.Values) {
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() {
		writeJSON(w, map[string]string{"error": ErrInvalidRequest, "error_description": "redirect_uri must be an absolute URI"}, http.StatusBadRequest)
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func sessionToken(req *http.Request) string {
	if h := req.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if c, err := req.Cookie(middleware.SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
