package oauth

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"gomsle/internal/accounts"
	"gomsle/internal/apps"
	"gomsle/internal/mailer"
	"gomsle/internal/token"
	"gomsle/pkg/middleware"
)

type fixture struct {
	engine   *Engine
	grants   GrantStore
	signer   token.Signer
	clientID string
	secret   string
	redirect string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	ctx := context.Background()

	accountSvc := accounts.NewService(accounts.NewMemoryStore(), mailer.NewMemorySender(), 7*24*time.Hour, log)
	appSvc := apps.NewService(apps.NewMemoryStore(), accountSvc, log)

	admin := middleware.Principal{UserID: "admin", Email: "owner@gomsle.com", Authenticated: true}
	account, err := accountSvc.Create(ctx, admin, accounts.CreateCommand{Name: "Microsoft"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	app, err := appSvc.CreateApplication(ctx, admin, apps.CreateApplicationCommand{
		AccountID:   account.ID,
		DisplayName: "Portal",
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if _, err := appSvc.CreateOidcProvider(ctx, admin, apps.ProviderCommand{
		ApplicationID: app.ID,
		Name:          "Portal",
		AuthorityUrl:  "https://gomsle.com",
		ClientID:      "portal-client",
		ClientSecret:  "portal-secret",
		ResponseType:  "code",
		Scopes:        []string{"api"},
		IsDefault:     true,
		IsVisible:     true,
	}); err != nil {
		t.Fatalf("create provider: %v", err)
	}

	signer, err := token.NewHS256Signer("http://localhost:8080", "test-signing-key")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	grants := NewMemoryGrantStore()
	engine := NewEngine(appSvc, grants, signer, 5*time.Minute, time.Hour, time.Hour, 30*24*time.Hour, log)
	return &fixture{
		engine:   engine,
		grants:   grants,
		signer:   signer,
		clientID: "portal-client",
		secret:   "portal-secret",
		redirect: "https://portal.gomsle.com/callback",
	}
}

func (f *fixture) authorizeReq() AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:     f.clientID,
		RedirectURI:  f.redirect,
		ResponseType: "code",
		Scope:        "openid email api",
		State:        "xyz",
		Nonce:        "n-0S6_WzA2Mj",
	}
}

var alice = middleware.Principal{UserID: "u1", Email: "alice@gomsle.com", Authenticated: true}

func TestAuthorizeChallengesAnonymous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.engine.Authorize(ctx, middleware.Principal{}, f.authorizeReq())
	if out.Phase != PhaseChallengePending {
		t.Fatalf("expected challenge, got %+v", out)
	}
	if out.RequestID == "" {
		t.Fatalf("challenge must carry a request id")
	}

	// After login the stored request resumes by id alone and yields a code.
	resumed := f.engine.Authorize(ctx, alice, AuthorizeRequest{RequestID: out.RequestID})
	if resumed.Phase != PhaseAuthenticated {
		t.Fatalf("expected grant after login, got %+v", resumed)
	}
	if resumed.Code == "" || resumed.State != "xyz" || resumed.RedirectURI != f.redirect {
		t.Fatalf("unexpected grant %+v", resumed)
	}

	// The pending request was consumed; replaying the id with no parameters
	// has nothing to resume.
	replay := f.engine.Authorize(ctx, alice, AuthorizeRequest{RequestID: out.RequestID})
	if replay.Denied == nil {
		t.Fatalf("expected denial on replay, got %+v", replay)
	}
}

func TestAuthorizeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*AuthorizeRequest)
		code   string
	}{
		{"missing client", func(r *AuthorizeRequest) { r.ClientID = "" }, ErrInvalidRequest},
		{"unknown client", func(r *AuthorizeRequest) { r.ClientID = "nope" }, ErrInvalidClient},
		{"missing redirect", func(r *AuthorizeRequest) { r.RedirectURI = "" }, ErrInvalidRequest},
		{"relative redirect", func(r *AuthorizeRequest) { r.RedirectURI = "/callback" }, ErrInvalidRequest},
		{"missing response type", func(r *AuthorizeRequest) { r.ResponseType = "" }, ErrInvalidRequest},
		{"bogus response type", func(r *AuthorizeRequest) { r.ResponseType = "token" }, ErrUnsupportedResponseType},
		{"disabled response type", func(r *AuthorizeRequest) { r.ResponseType = "id_token" }, ErrUnsupportedResponseType},
		{"scope outside the configured set", func(r *AuthorizeRequest) { r.Scope = "admin" }, ErrInvalidScope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.authorizeReq()
			tc.mutate(&req)
			out := f.engine.Authorize(ctx, alice, req)
			if out.Denied == nil || out.Denied.Code != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, out)
			}
		})
	}
}

func (f *fixture) obtainCode(t *testing.T) string {
	t.Helper()
	out := f.engine.Authorize(context.Background(), alice, f.authorizeReq())
	if out.Phase != PhaseAuthenticated || out.Code == "" {
		t.Fatalf("expected code, got %+v", out)
	}
	return out.Code
}

func (f *fixture) tokenReq(code string) TokenRequest {
	return TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  f.redirect,
		ClientID:     f.clientID,
		ClientSecret: f.secret,
	}
}

func TestExchangeAuthorizationCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.obtainCode(t)

	set, denied := f.engine.Exchange(ctx, f.tokenReq(code))
	if denied != nil {
		t.Fatalf("exchange denied: %+v", denied)
	}
	if set.AccessToken == "" || set.RefreshToken == "" || set.TokenType != "Bearer" {
		t.Fatalf("incomplete token set %+v", set)
	}
	if set.IDToken == "" {
		t.Fatalf("openid scope must yield an id token")
	}

	claims, err := f.signer.Verify(ctx, set.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.String("sub") != alice.UserID || claims.String("client_id") != f.clientID {
		t.Fatalf("unexpected claims %+v", claims)
	}
	idc, err := f.signer.Verify(ctx, set.IDToken)
	if err != nil {
		t.Fatalf("id token does not verify: %v", err)
	}
	if idc.String("nonce") != "n-0S6_WzA2Mj" {
		t.Fatalf("id token must echo the nonce, got %q", idc.String("nonce"))
	}
}

func TestCodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.obtainCode(t)

	if _, denied := f.engine.Exchange(ctx, f.tokenReq(code)); denied != nil {
		t.Fatalf("first exchange denied: %+v", denied)
	}
	_, denied := f.engine.Exchange(ctx, f.tokenReq(code))
	if denied == nil || denied.Code != ErrInvalidGrant {
		t.Fatalf("expected invalid_grant on reuse, got %+v", denied)
	}
}

func TestExchangeUniformDenials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mutations := []struct {
		name   string
		mutate func(*TokenRequest)
	}{
		{"unknown code", func(r *TokenRequest) { r.Code = "bogus" }},
		{"wrong client", func(r *TokenRequest) { r.ClientID = "someone-else" }},
		{"wrong secret", func(r *TokenRequest) { r.ClientSecret = "wrong" }},
		{"wrong redirect", func(r *TokenRequest) { r.RedirectURI = "https://evil.example/cb" }},
	}
	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			req := f.tokenReq(f.obtainCode(t))
			tc.mutate(&req)
			_, denied := f.engine.Exchange(ctx, req)
			if denied == nil || denied.Code != ErrInvalidGrant {
				t.Fatalf("expected invalid_grant, got %+v", denied)
			}
			if denied.Description != invalidGrant.Description {
				t.Fatalf("denials must not distinguish causes: %q", denied.Description)
			}
		})
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, denied := f.engine.Exchange(ctx, f.tokenReq(f.obtainCode(t)))
	if denied != nil {
		t.Fatalf("exchange denied: %+v", denied)
	}

	refresh := TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: set.RefreshToken,
		ClientID:     f.clientID,
		ClientSecret: f.secret,
	}
	next, denied := f.engine.Exchange(ctx, refresh)
	if denied != nil {
		t.Fatalf("refresh denied: %+v", denied)
	}
	if next.RefreshToken == "" || next.RefreshToken == set.RefreshToken {
		t.Fatalf("refresh must rotate the token")
	}

	// The consumed refresh token is dead.
	_, denied = f.engine.Exchange(ctx, refresh)
	if denied == nil || denied.Code != ErrInvalidGrant {
		t.Fatalf("expected invalid_grant on refresh reuse, got %+v", denied)
	}

	// The rotated one works.
	refresh.RefreshToken = next.RefreshToken
	if _, denied := f.engine.Exchange(ctx, refresh); denied != nil {
		t.Fatalf("rotated refresh denied: %+v", denied)
	}
}

func TestExchangeGrantTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, denied := f.engine.Exchange(ctx, TokenRequest{})
	if denied == nil || denied.Code != ErrInvalidRequest {
		t.Fatalf("expected invalid_request for missing grant_type, got %+v", denied)
	}
	_, denied = f.engine.Exchange(ctx, TokenRequest{GrantType: "password"})
	if denied == nil || denied.Code != ErrUnsupportedGrantType {
		t.Fatalf("expected unsupported_grant_type, got %+v", denied)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.Logout(ctx, "session-1", time.Hour); err != nil {
		t.Fatalf("logout: %v", err)
	}
	revoked, err := f.grants.IsRevoked(ctx, "session-1")
	if err != nil || !revoked {
		t.Fatalf("expected session-1 revoked, got %v %v", revoked, err)
	}

	// Again, and for a session that never existed.
	if err := f.engine.Logout(ctx, "session-1", time.Hour); err != nil {
		t.Fatalf("repeated logout: %v", err)
	}
	if err := f.engine.Logout(ctx, "", time.Hour); err != nil {
		t.Fatalf("logout without a session: %v", err)
	}
}
