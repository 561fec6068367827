package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gomsle/pkg/config"
	"gomsle/pkg/middleware"
)

type fakeSessions struct {
	jti string
}

func (f *fakeSessions) SessionJTI(ctx context.Context, raw string) (string, time.Duration, error) {
	return f.jti, time.Hour, nil
}

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		Issuer:     "http://localhost:8080",
		LoginURL:   "http://localhost:3000/login",
		SessionTTL: time.Hour,
	}
	router := chi.NewRouter()
	// Test principal travels in a header instead of a real session token.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if uid := r.Header.Get("X-Test-User"); uid != "" {
				p := middleware.Principal{UserID: uid, Email: uid + "@gomsle.com", Authenticated: true}
				r = r.WithContext(middleware.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	})
	RegisterRoutes(router, cfg, f.engine, &fakeSessions{jti: "session-jti"}, zap.NewNop().Sugar())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func noRedirects() *http.Client {
	return &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func TestAuthorizeEndpoint(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	client := noRedirects()

	q := url.Values{
		"client_id":     {f.clientID},
		"redirect_uri":  {f.redirect},
		"response_type": {"code"},
		"scope":         {"openid api"},
		"state":         {"xyz"},
	}

	// Anonymous callers are challenged to the login page.
	resp, err := client.Get(srv.URL + "/connect/authorize?" + q.Encode())
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || loc.Host != "localhost:3000" {
		t.Fatalf("expected challenge to login page, got %q", resp.Header.Get("Location"))
	}
	returnURL, err := url.Parse(loc.Query().Get("returnUrl"))
	if err != nil || returnURL.Query().Get("request_id") == "" {
		t.Fatalf("returnUrl must resume the request, got %q", loc.Query().Get("returnUrl"))
	}

	// Authenticated resume lands back on the redirect URI with a code.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/connect/authorize?request_id="+returnURL.Query().Get("request_id"), nil)
	req.Header.Set("X-Test-User", "u1")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302 on resume, got %d", resp.StatusCode)
	}
	cb, err := url.Parse(resp.Header.Get("Location"))
	if err != nil || cb.Host != "portal.gomsle.com" {
		t.Fatalf("expected redirect to callback, got %q", resp.Header.Get("Location"))
	}
	if cb.Query().Get("code") == "" || cb.Query().Get("state") != "xyz" {
		t.Fatalf("callback missing code or state: %q", cb.RawQuery)
	}

	// The code redeems at the token endpoint.
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {cb.Query().Get("code")},
		"redirect_uri":  {f.redirect},
		"client_id":     {f.clientID},
		"client_secret": {f.secret},
	}
	resp, err = http.Post(srv.URL+"/connect/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var set TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		t.Fatalf("decode token set: %v", err)
	}
	if set.AccessToken == "" || set.IDToken == "" {
		t.Fatalf("incomplete token set %+v", set)
	}
}

func TestAuthorizeEndpointErrorRedirect(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	client := noRedirects()

	q := url.Values{
		"client_id":     {f.clientID},
		"redirect_uri":  {f.redirect},
		"response_type": {"id_token"},
		"state":         {"xyz"},
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/connect/authorize?"+q.Encode(), nil)
	req.Header.Set("X-Test-User", "u1")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected error redirect, got %d", resp.StatusCode)
	}
	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc.Query().Get("error") != ErrUnsupportedResponseType || loc.Query().Get("state") != "xyz" {
		t.Fatalf("unexpected error redirect %q", resp.Header.Get("Location"))
	}
}

func TestAuthorizeEndpointUnknownClient(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	q := url.Values{
		"client_id":     {"nope"},
		"redirect_uri":  {f.redirect},
		"response_type": {"code"},
	}
	resp, err := http.Get(srv.URL + "/connect/authorize?" + q.Encode())
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown client must not redirect, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != ErrInvalidClient {
		t.Fatalf("expected invalid_client, got %v", body)
	}
}

func TestTokenEndpointDenial(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {"bogus"},
		"client_id":  {f.clientID},
	}
	resp, err := http.Post(srv.URL+"/connect/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != ErrInvalidGrant || body["error_description"] == "" {
		t.Fatalf("unexpected denial %v", body)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	client := noRedirects()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/connect/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "some-session-token"})
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}

	revoked, err := f.grants.IsRevoked(context.Background(), "session-jti")
	if err != nil || !revoked {
		t.Fatalf("session must be revoked, got %v %v", revoked, err)
	}

	// The session cookie is cleared.
	cleared := false
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("session cookie was not cleared")
	}

	// Logging out again is fine.
	again, err := client.Do(req)
	if err != nil {
		t.Fatalf("repeated logout: %v", err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusFound {
		t.Fatalf("repeated logout status %d", again.StatusCode)
	}
}

func TestLogoutRedirectStaysOnDeployment(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	client := noRedirects()

	cases := []struct {
		target string
		want   string
	}{
		{"", "/"},
		{"/goodbye", "/goodbye"},
		{"//evil.example", "/"},
		{"/\\evil.example", "/"},
		{"https://evil.example/phish", "/"},
		{"http://localhost:3000/login", "http://localhost:3000/login"},
		{"http://localhost:8080/", "http://localhost:8080/"},
	}
	for _, c := range cases {
		u := srv.URL + "/connect/logout"
		if c.target != "" {
			u += "?post_logout_redirect_uri=" + url.QueryEscape(c.target)
		}
		resp, err := client.Get(u)
		if err != nil {
			t.Fatalf("logout %q: %v", c.target, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("logout %q: status %d", c.target, resp.StatusCode)
		}
		if got := resp.Header.Get("Location"); got != c.want {
			t.Fatalf("logout %q: redirected to %q, want %q", c.target, got, c.want)
		}
	}
}
