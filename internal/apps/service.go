// internal/apps/service.go
package apps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gomsle/internal/accounts"
	"gomsle/pkg/middleware"
	"gomsle/pkg/validation"
)

// Authorizer answers role checks against the account registry.
type Authorizer interface {
	Authorize(ctx context.Context, accountID, userID string, min accounts.Role) (bool, error)
}

// Service is the application & provider registry. Every mutation resolves
// ownership (provider → application → account) and checks the caller's role
// before validating the record itself.
type Service struct {
	store Store
	authz Authorizer
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewService(store Store, authz Authorizer, log *zap.SugaredLogger) *Service {
	return &Service{store: store, authz: authz, log: log, now: time.Now}
}

// CreateApplicationCommand creates an application under an account.
type CreateApplicationCommand struct {
	AccountID       string `json:"accountId"`
	DisplayName     string `json:"displayName"`
	AutoProvision   bool   `json:"autoProvision"`
	EnableProvision bool   `json:"enableProvision"`
}

func (s *Service) CreateApplication(ctx context.Context, principal middleware.Principal, cmd CreateApplicationCommand) (*Application, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "AccountId", cmd.AccountID)
	errs = validation.NotEmpty(errs, "DisplayName", cmd.DisplayName)
	if strings.TrimSpace(cmd.AccountID) != "" {
		ok, err := s.authz.Authorize(ctx, cmd.AccountID, principal.UserID, accounts.RoleAdministrator)
		if err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}
		if !ok {
			errs = errs.Fail("AccountId", validation.CodeNotAuthorized, "")
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	app := Application{
		ID:              uuid.NewString(),
		AccountID:       cmd.AccountID,
		DisplayName:     cmd.DisplayName,
		AutoProvision:   cmd.AutoProvision,
		EnableProvision: cmd.EnableProvision,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.InsertApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("insert application: %w", err)
	}
	s.log.Infow("application created", "application", app.ID, "account", app.AccountID)
	return &app, nil
}

// ProviderCommand carries the full provider record; create and edit share it
// since edits are full-record replacements.
type ProviderCommand struct {
	ID            string   `json:"id,omitempty"`
	ApplicationID string   `json:"applicationId"`
	Name          string   `json:"name"`
	AuthorityUrl  string   `json:"authorityUrl"`
	ClientID      string   `json:"clientId"`
	ClientSecret  string   `json:"clientSecret"`
	ResponseType  string   `json:"responseType"`
	Scopes        []string `json:"scopes"`
	IsDefault     bool     `json:"isDefault"`
	IsVisible     bool     `json:"isVisible"`
}

func validateProviderFields(errs validation.Errors, cmd ProviderCommand) validation.Errors {
	errs = validation.NotEmpty(errs, "Name", cmd.Name)
	errs = validation.NotEmpty(errs, "AuthorityUrl", cmd.AuthorityUrl)
	errs = validation.AbsoluteURL(errs, "AuthorityUrl", cmd.AuthorityUrl)
	errs = validation.NotEmpty(errs, "ClientId", cmd.ClientID)
	errs = validation.NotEmpty(errs, "ResponseType", cmd.ResponseType)
	if strings.TrimSpace(cmd.ResponseType) != "" && !ResponseTypeAllowed(cmd.ResponseType) {
		errs = errs.Fail("ResponseType", validation.CodeResponseTypeIsInvalid, "")
	}
	return errs
}

func (s *Service) CreateOidcProvider(ctx context.Context, principal middleware.Principal, cmd ProviderCommand) (*OidcProviderConfig, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "ApplicationId", cmd.ApplicationID)
	errs = validateProviderFields(errs, cmd)
	if strings.TrimSpace(cmd.ApplicationID) != "" {
		// Missing and foreign applications report the same code so callers
		// cannot probe for existence.
		app, err := s.store.FindApplicationByID(ctx, cmd.ApplicationID)
		if err == ErrNotFound {
			errs = errs.Fail("ApplicationId", validation.CodeNotAuthorized, "")
		} else if err != nil {
			return nil, fmt.Errorf("find application: %w", err)
		} else {
			ok, err := s.authz.Authorize(ctx, app.AccountID, principal.UserID, accounts.RoleAdministrator)
			if err != nil {
				return nil, fmt.Errorf("authorize: %w", err)
			}
			if !ok {
				errs = errs.Fail("ApplicationId", validation.CodeNotAuthorized, "")
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	cfg := providerFromCommand(cmd)
	cfg.ID = uuid.NewString()
	if err := s.store.SaveProvider(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save provider: %w", err)
	}
	s.log.Infow("oidc provider created", "provider", cfg.ID, "application", cfg.ApplicationID)
	return &cfg, nil
}

// EditOidcProvider replaces the record keyed by cmd.ID. Ownership resolves
// Id → ApplicationId → AccountId → caller role; an unknown or foreign Id
// fails with field Id and code NotAuthorized.
func (s *Service) EditOidcProvider(ctx context.Context, principal middleware.Principal, cmd ProviderCommand) (*OidcProviderConfig, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "Id", cmd.ID)
	errs = validateProviderFields(errs, cmd)

	var existing *OidcProviderConfig
	if strings.TrimSpace(cmd.ID) != "" {
		p, err := s.store.FindProviderByID(ctx, cmd.ID)
		if err == ErrNotFound {
			errs = errs.Fail("Id", validation.CodeNotAuthorized, "")
		} else if err != nil {
			return nil, fmt.Errorf("find provider: %w", err)
		} else {
			app, err := s.store.FindApplicationByID(ctx, p.ApplicationID)
			if err != nil {
				return nil, fmt.Errorf("find application: %w", err)
			}
			ok, err := s.authz.Authorize(ctx, app.AccountID, principal.UserID, accounts.RoleAdministrator)
			if err != nil {
				return nil, fmt.Errorf("authorize: %w", err)
			}
			if !ok {
				errs = errs.Fail("Id", validation.CodeNotAuthorized, "")
			} else {
				existing = p
			}
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	cfg := providerFromCommand(cmd)
	cfg.ID = existing.ID
	cfg.ApplicationID = existing.ApplicationID
	if err := s.store.SaveProvider(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save provider: %w", err)
	}
	s.log.Infow("oidc provider updated", "provider", cfg.ID, "application", cfg.ApplicationID)
	return &cfg, nil
}

func providerFromCommand(cmd ProviderCommand) OidcProviderConfig {
	return OidcProviderConfig{
		ApplicationID: cmd.ApplicationID,
		Name:          cmd.Name,
		AuthorityUrl:  cmd.AuthorityUrl,
		ClientID:      cmd.ClientID,
		ClientSecret:  cmd.ClientSecret,
		ResponseType:  cmd.ResponseType,
		Scopes:        append([]string(nil), cmd.Scopes...),
		IsDefault:     cmd.IsDefault,
		IsVisible:     cmd.IsVisible,
	}
}

// ApplicationsForAccount lists an account's applications for any member.
func (s *Service) ApplicationsForAccount(ctx context.Context, principal middleware.Principal, accountID string) ([]Application, error) {
	ok, err := s.authz.Authorize(ctx, accountID, principal.UserID, accounts.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if !ok {
		return nil, validation.Errors{}.Fail("AccountId", validation.CodeNotAuthorized, "")
	}
	return s.store.ApplicationsByAccount(ctx, accountID)
}

// ProvidersForApplication lists an application's provider configs for any
// member of the owning account.
func (s *Service) ProvidersForApplication(ctx context.Context, principal middleware.Principal, applicationID string) ([]OidcProviderConfig, error) {
	app, err := s.store.FindApplicationByID(ctx, applicationID)
	if err == ErrNotFound {
		return nil, validation.Errors{}.Fail("ApplicationId", validation.CodeNotAuthorized, "")
	}
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	ok, err := s.authz.Authorize(ctx, app.AccountID, principal.UserID, accounts.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if !ok {
		return nil, validation.Errors{}.Fail("ApplicationId", validation.CodeNotAuthorized, "")
	}
	return s.store.ProvidersByApplication(ctx, applicationID)
}

// ApplicationByClientID resolves the protocol's client_id to its owning
// application and provider set; consumed by the authorization engine.
func (s *Service) ApplicationByClientID(ctx context.Context, clientID string) (*Application, *OidcProviderConfig, error) {
	p, err := s.store.FindProviderByClientID(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}
	app, err := s.store.FindApplicationByID(ctx, p.ApplicationID)
	if err != nil {
		return nil, nil, err
	}
	return app, p, nil
}
