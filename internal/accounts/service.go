// internal/accounts/service.go
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gomsle/internal/mailer"
	"gomsle/pkg/middleware"
	"gomsle/pkg/validation"
)

// Service is the account & role registry. All mutations validate before
// writing; uniqueness conflicts surface as validation-shaped failures.
type Service struct {
	store         Store
	mail          mailer.Sender
	invitationTTL time.Duration
	log           *zap.SugaredLogger
	now           func() time.Time
}

func NewService(store Store, mail mailer.Sender, invitationTTL time.Duration, log *zap.SugaredLogger) *Service {
	return &Service{
		store:         store,
		mail:          mail,
		invitationTTL: invitationTTL,
		log:           log,
		now:           time.Now,
	}
}

// CreateCommand creates an account; the caller becomes its sole Owner.
type CreateCommand struct {
	Name string `json:"name"`
}

func (s *Service) Create(ctx context.Context, principal middleware.Principal, cmd CreateCommand) (*Account, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "Name", cmd.Name)
	if !principal.Authenticated {
		errs = errs.Fail("", validation.CodeNotAuthorized, "")
	}
	if len(errs) > 0 {
		return nil, errs
	}

	account := Account{ID: uuid.NewString(), Name: cmd.Name, CreatedAt: s.now().UTC()}
	owner := AccountUser{AccountID: account.ID, UserID: principal.UserID, Role: RoleOwner}
	if err := s.store.InsertAccount(ctx, account, owner); err != nil {
		if err == ErrDuplicateName {
			return nil, validation.Errors{}.Fail("Name", validation.CodeDuplicateName, "")
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	s.log.Infow("account created", "account", account.ID, "owner", principal.UserID)
	return &account, nil
}

// InviteCommand offers membership to an email address. The Owner role is
// never assignable this way.
type InviteCommand struct {
	AccountName   string `json:"accountName"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	InvitationUrl string `json:"invitationUrl"`
}

func (s *Service) validateInvite(ctx context.Context, principal middleware.Principal, cmd InviteCommand) (*Account, Role, validation.Errors) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "AccountName", cmd.AccountName)
	errs = validation.NotEmpty(errs, "Email", cmd.Email)
	errs = validation.Email(errs, "Email", cmd.Email)
	errs = validation.NotEmpty(errs, "InvitationUrl", cmd.InvitationUrl)
	errs = validation.AbsoluteURL(errs, "InvitationUrl", cmd.InvitationUrl)
	errs = validation.NotEmpty(errs, "Role", cmd.Role)

	var role Role
	if strings.TrimSpace(cmd.Role) != "" {
		parsed, ok := ParseRole(cmd.Role)
		switch {
		case !ok:
			errs = errs.Fail("Role", validation.CodeRoleIsInvalid, "")
		case parsed == RoleOwner:
			errs = errs.Fail("Role", validation.CodeOnlyOneOwner, "")
		default:
			role = parsed
		}
	}

	var account *Account
	if strings.TrimSpace(cmd.AccountName) != "" {
		a, err := s.store.FindAccountByName(ctx, cmd.AccountName)
		switch {
		case err == ErrNotFound:
			errs = errs.Fail("AccountName", validation.CodeAccountNotFound, "")
		case err != nil:
			return nil, "", errs.Fail("AccountName", validation.CodeAccountNotFound, err.Error())
		default:
			account = a
			ok, err := s.Authorize(ctx, a.ID, principal.UserID, RoleAdministrator)
			if err != nil || !ok {
				errs = errs.Fail("AccountName", validation.CodeNotAuthorized, "")
			}
		}
	}
	return account, role, errs
}

// Invite validates, dispatches the invitation email, and only then writes
// the invitation record. A failed send aborts the command before any write.
func (s *Service) Invite(ctx context.Context, principal middleware.Principal, cmd InviteCommand) (*Invitation, error) {
	account, role, errs := s.validateInvite(ctx, principal, cmd)
	if len(errs) > 0 {
		return nil, errs
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("invitation token: %w", err)
	}
	inv := Invitation{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Email:     cmd.Email,
		Role:      role,
		Token:     token,
		ExpiresAt: s.now().UTC().Add(s.invitationTTL),
	}

	link := cmd.InvitationUrl
	if strings.Contains(link, "?") {
		link += "&token=" + token
	} else {
		link += "?token=" + token
	}
	subject := fmt.Sprintf("You have been invited to %s", account.Name)
	body := fmt.Sprintf("You have been invited to join %s as %s.\n\nAccept the invitation: %s\n", account.Name, role, link)
	if err := s.mail.Send(ctx, cmd.Email, subject, body); err != nil {
		return nil, fmt.Errorf("send invitation: %w", err)
	}

	if err := s.store.InsertInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	s.log.Infow("invitation created", "account", account.ID, "email", cmd.Email, "role", role)
	return &inv, nil
}

// AcceptCommand redeems an invitation token for the authenticated user.
type AcceptCommand struct {
	Token string `json:"token"`
}

func (s *Service) AcceptInvitation(ctx context.Context, principal middleware.Principal, cmd AcceptCommand) (*AccountUser, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "Token", cmd.Token)
	if !principal.Authenticated {
		errs = errs.Fail("", validation.CodeNotAuthorized, "")
	}
	if len(errs) > 0 {
		return nil, errs
	}

	inv, err := s.store.FindInvitationByToken(ctx, cmd.Token)
	if err == ErrNotFound {
		return nil, validation.Errors{}.Fail("Token", validation.CodeInvitationNotFound, "")
	}
	if err != nil {
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	if inv.Expired(s.now()) {
		return nil, validation.Errors{}.Fail("Token", validation.CodeInvitationExpired, "")
	}
	if !strings.EqualFold(inv.Email, principal.Email) {
		return nil, validation.Errors{}.Fail("Token", validation.CodeNotAuthorized, "")
	}

	// Consume first so concurrent acceptances race on the delete and at
	// most one produces a membership.
	won, err := s.store.ConsumeInvitation(ctx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("consume invitation: %w", err)
	}
	if !won {
		return nil, validation.Errors{}.Fail("Token", validation.CodeInvitationNotFound, "")
	}

	m := AccountUser{AccountID: inv.AccountID, UserID: principal.UserID, Role: inv.Role}
	inserted, err := s.store.InsertMembership(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	if !inserted {
		// Already a member; the existing role stands. An invitation must
		// never lower a role, the Owner's in particular.
		existing, err := s.store.Membership(ctx, inv.AccountID, principal.UserID)
		if err != nil {
			return nil, fmt.Errorf("find membership: %w", err)
		}
		s.log.Infow("invitation accepted by existing member", "account", inv.AccountID, "user", principal.UserID, "role", existing.Role)
		return existing, nil
	}
	s.log.Infow("invitation accepted", "account", inv.AccountID, "user", principal.UserID, "role", inv.Role)
	return &m, nil
}

// Members lists an account's memberships for any member of that account.
func (s *Service) Members(ctx context.Context, principal middleware.Principal, accountID string) ([]AccountUser, error) {
	ok, err := s.Authorize(ctx, accountID, principal.UserID, RoleMember)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if !ok {
		return nil, validation.Errors{}.Fail("AccountId", validation.CodeNotAuthorized, "")
	}
	return s.store.Memberships(ctx, accountID)
}

// Authorize reports whether userID holds at least min on accountID.
func (s *Service) Authorize(ctx context.Context, accountID, userID string, min Role) (bool, error) {
	if userID == "" {
		return false, nil
	}
	m, err := s.store.Membership(ctx, accountID, userID)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Role.AtLeast(min), nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
