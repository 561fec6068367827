// internal/oauth/engine.go
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gomsle/internal/apps"
	"gomsle/internal/token"
	"gomsle/pkg/middleware"
)

// Phase is the protocol state of one in-flight authorization request.
type Phase string

const (
	PhaseUnauthenticated  Phase = "Unauthenticated"
	PhaseChallengePending Phase = "ChallengePending"
	PhaseAuthenticated    Phase = "Authenticated"
	PhaseExchanged        Phase = "Exchanged"
)

// OAuth2 error codes used in denials.
const (
	ErrInvalidRequest          = "invalid_request"
	ErrInvalidClient           = "invalid_client"
	ErrInvalidGrant            = "invalid_grant"
	ErrInvalidScope            = "invalid_scope"
	ErrUnsupportedResponseType = "unsupported_response_type"
	ErrUnsupportedGrantType    = "unsupported_grant_type"
)

// Denial is a structured protocol refusal in OAuth2 error-response shape.
type Denial struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// Map renders the denial the way the HTTP boundary serializes it.
func (d Denial) Map() map[string]string {
	return map[string]string{"error": d.Code, "error_description": d.Description}
}

// AuthorizeRequest carries the standard OIDC authorization parameters plus
// the engine's own request id used to resume after interactive login.
type AuthorizeRequest struct {
	RequestID    string `json:"request_id,omitempty"`
	ClientID     string `json:"client_id"`
	RedirectURI  string `json:"redirect_uri"`
	ResponseType string `json:"response_type"`
	Scope        string `json:"scope"`
	State        string `json:"state,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
}

// AuthorizeOutcome is the discriminated result of Authorize: a challenge,
// a grant, or a structured denial. Never an unstructured fault.
type AuthorizeOutcome struct {
	Phase       Phase
	RequestID   string // set on challenge, echoes into the login round-trip
	Code        string // set on grant
	RedirectURI string
	State       string
	Denied      *Denial
}

// TokenRequest is the standard token-exchange body.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenSet is the signed token response emitted on successful exchange.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Engine is the authorization protocol state machine. Transient per-request
// state lives in the grant store; the engine itself is stateless and safe
// for concurrent use.
type Engine struct {
	apps   *apps.Service
	grants GrantStore
	signer token.Signer
	log    *zap.SugaredLogger

	codeTTL    time.Duration
	accessTTL  time.Duration
	idTTL      time.Duration
	refreshTTL time.Duration
	pendingTTL time.Duration
}

func NewEngine(appSvc *apps.Service, grants GrantStore, signer token.Signer, codeTTL, accessTTL, idTTL, refreshTTL time.Duration, log *zap.SugaredLogger) *Engine {
	return &Engine{
		apps:       appSvc,
		grants:     grants,
		signer:     signer,
		log:        log,
		codeTTL:    codeTTL,
		accessTTL:  accessTTL,
		idTTL:      idTTL,
		refreshTTL: refreshTTL,
		pendingTTL: 10 * time.Minute,
	}
}

// Authorize validates the request against the client's registered provider
// configuration and either challenges, grants a code, or denies. Re-entrant:
// a request id from a previous challenge resumes the stored request.
func (e *Engine) Authorize(ctx context.Context, principal middleware.Principal, req AuthorizeRequest) AuthorizeOutcome {
	if req.RequestID != "" {
		if p, err := e.grants.TakePending(ctx, req.RequestID); err == nil {
			req = p.Request
			req.RequestID = p.ID
		}
	}

	if denied := e.validateAuthorize(ctx, req); denied != nil {
		authorizeDenials.Inc()
		return AuthorizeOutcome{Phase: PhaseUnauthenticated, Denied: denied}
	}

	if !principal.Authenticated {
		id := req.RequestID
		if id == "" {
			id = uuid.NewString()
		}
		stored := req
		stored.RequestID = ""
		if err := e.grants.SavePending(ctx, PendingRequest{ID: id, Request: stored, CreatedAt: time.Now().UTC()}, e.pendingTTL); err != nil {
			e.log.Errorw("save pending request", "err", err)
			return AuthorizeOutcome{Phase: PhaseUnauthenticated, Denied: &Denial{Code: ErrInvalidRequest, Description: "authorization request could not be stored"}}
		}
		return AuthorizeOutcome{Phase: PhaseChallengePending, RequestID: id}
	}

	code, err := newGrantValue()
	if err != nil {
		e.log.Errorw("grant value", "err", err)
		return AuthorizeOutcome{Phase: PhaseUnauthenticated, Denied: &Denial{Code: ErrInvalidRequest, Description: "authorization code could not be issued"}}
	}
	grant := Grant{
		Code:        code,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		UserID:      principal.UserID,
		Email:       principal.Email,
		Scope:       req.Scope,
		Nonce:       req.Nonce,
		IssuedAt:    time.Now().UTC(),
	}
	if err := e.grants.SaveCode(ctx, grant, e.codeTTL); err != nil {
		e.log.Errorw("save code", "err", err)
		return AuthorizeOutcome{Phase: PhaseUnauthenticated, Denied: &Denial{Code: ErrInvalidRequest, Description: "authorization code could not be issued"}}
	}
	codesIssued.Inc()
	return AuthorizeOutcome{
		Phase:       PhaseAuthenticated,
		Code:        code,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	}
}

func (e *Engine) validateAuthorize(ctx context.Context, req AuthorizeRequest) *Denial {
	if strings.TrimSpace(req.ClientID) == "" {
		return &Denial{Code: ErrInvalidRequest, Description: "client_id is required"}
	}
	if strings.TrimSpace(req.RedirectURI) == "" {
		return &Denial{Code: ErrInvalidRequest, Description: "redirect_uri is required"}
	}
	if u, err := url.Parse(req.RedirectURI); err != nil || !u.IsAbs() || u.Host == "" {
		return &Denial{Code: ErrInvalidRequest, Description: "redirect_uri must be an absolute URI"}
	}

	_, provider, err := e.apps.ApplicationByClientID(ctx, req.ClientID)
	if err != nil {
		return &Denial{Code: ErrInvalidClient, Description: "client is not registered"}
	}

	switch {
	case strings.TrimSpace(req.ResponseType) == "":
		return &Denial{Code: ErrInvalidRequest, Description: "response_type is required"}
	case !apps.ResponseTypeAllowed(req.ResponseType):
		return &Denial{Code: ErrUnsupportedResponseType, Description: "response_type is not supported"}
	case req.ResponseType != provider.ResponseType:
		return &Denial{Code: ErrUnsupportedResponseType, Description: "response_type is not enabled for this client"}
	}

	if denied := validateScope(req.Scope, provider.Scopes); denied != nil {
		return denied
	}
	return nil
}

// standard OIDC scopes accepted for every client in addition to the
// provider's configured set.
var standardScopes = map[string]struct{}{
	"openid": {}, "profile": {}, "email": {}, "offline_access": {},
}

func validateScope(requested string, allowed []string) *Denial {
	if strings.TrimSpace(requested) == "" {
		return nil
	}
	set := map[string]struct{}{}
	for _, s := range allowed {
		set[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := standardScopes[s]; ok {
			continue
		}
		if _, ok := set[s]; !ok {
			return &Denial{Code: ErrInvalidScope, Description: "scope " + s + " is not allowed"}
		}
	}
	return nil
}

// Exchange redeems an authorization code or refresh token for a signed
// token set. All redemption failures collapse into one invalid_grant denial
// so a caller cannot tell whether the client or the grant was wrong.
func (e *Engine) Exchange(ctx context.Context, req TokenRequest) (*TokenSet, *Denial) {
	switch req.GrantType {
	case "authorization_code":
		return e.exchangeCode(ctx, req)
	case "refresh_token":
		return e.exchangeRefresh(ctx, req)
	case "":
		return nil, &Denial{Code: ErrInvalidRequest, Description: "grant_type is required"}
	default:
		return nil, &Denial{Code: ErrUnsupportedGrantType, Description: "grant_type is not supported"}
	}
}

var invalidGrant = &Denial{Code: ErrInvalidGrant, Description: "the authorization grant is invalid, expired or revoked"}

func (e *Engine) exchangeCode(ctx context.Context, req TokenRequest) (*TokenSet, *Denial) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, &Denial{Code: ErrInvalidRequest, Description: "code is required"}
	}
	grant, err := e.grants.RedeemCode(ctx, req.Code)
	if err == ErrGrantNotFound {
		exchangeDenials.Inc()
		return nil, invalidGrant
	}
	if err != nil {
		e.log.Errorw("redeem code", "err", err)
		return nil, invalidGrant
	}
	if !e.clientMatches(ctx, req, grant.ClientID) || grant.RedirectURI != req.RedirectURI {
		exchangeDenials.Inc()
		return nil, invalidGrant
	}
	return e.issueTokens(ctx, grant.ClientID, grant.UserID, grant.Email, grant.Scope, grant.Nonce)
}

func (e *Engine) exchangeRefresh(ctx context.Context, req TokenRequest) (*TokenSet, *Denial) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, &Denial{Code: ErrInvalidRequest, Description: "refresh_token is required"}
	}
	grant, err := e.grants.RedeemRefresh(ctx, req.RefreshToken)
	if err == ErrGrantNotFound {
		exchangeDenials.Inc()
		return nil, invalidGrant
	}
	if err != nil {
		e.log.Errorw("redeem refresh", "err", err)
		return nil, invalidGrant
	}
	if !e.clientMatches(ctx, req, grant.ClientID) {
		exchangeDenials.Inc()
		return nil, invalidGrant
	}
	return e.issueTokens(ctx, grant.ClientID, grant.UserID, grant.Email, grant.Scope, "")
}

// clientMatches authenticates the caller as the client the grant was issued
// to. Secret comparison is constant-time; any mismatch reports the same
// denial as an unknown grant.
func (e *Engine) clientMatches(ctx context.Context, req TokenRequest, grantClientID string) bool {
	if req.ClientID != grantClientID {
		return false
	}
	_, provider, err := e.apps.ApplicationByClientID(ctx, grantClientID)
	if err != nil {
		return false
	}
	if provider.ClientSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provider.ClientSecret), []byte(req.ClientSecret)) == 1
}

func (e *Engine) issueTokens(ctx context.Context, clientID, userID, email, scope, nonce string) (*TokenSet, *Denial) {
	access, err := e.signer.Sign(ctx, token.Claims{
		"sub":       userID,
		"email":     email,
		"client_id": clientID,
		"scope":     scope,
		"jti":       uuid.NewString(),
	}, e.accessTTL)
	if err != nil {
		e.log.Errorw("sign access token", "err", err)
		return nil, invalidGrant
	}

	set := &TokenSet{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(e.accessTTL.Seconds()),
		Scope:       scope,
	}

	if hasScope(scope, "openid") {
		claims := token.Claims{"sub": userID, "email": email, "aud": clientID}
		if nonce != "" {
			claims["nonce"] = nonce
		}
		idt, err := e.signer.Sign(ctx, claims, e.idTTL)
		if err != nil {
			e.log.Errorw("sign id token", "err", err)
			return nil, invalidGrant
		}
		set.IDToken = idt
	}

	refresh, err := newGrantValue()
	if err != nil {
		e.log.Errorw("refresh value", "err", err)
		return nil, invalidGrant
	}
	rg := RefreshGrant{Token: refresh, ClientID: clientID, UserID: userID, Email: email, Scope: scope, IssuedAt: time.Now().UTC()}
	if err := e.grants.SaveRefresh(ctx, rg, e.refreshTTL); err != nil {
		e.log.Errorw("save refresh", "err", err)
		return nil, invalidGrant
	}
	set.RefreshToken = refresh
	tokensIssued.Inc()
	return set, nil
}

// Logout revokes the session token id. Idempotent: revoking an unknown or
// already-revoked id succeeds, and an absent session is not an error.
func (e *Engine) Logout(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := e.grants.Revoke(ctx, jti, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func hasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

func newGrantValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
