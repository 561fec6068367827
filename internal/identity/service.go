// internal/identity/service.go
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gomsle/internal/mailer"
	"gomsle/internal/token"
	"gomsle/pkg/middleware"
	"gomsle/pkg/validation"
)

const minPasswordLength = 6

// Revocations answers whether a session token id has been revoked by a
// logout. Nil means revocation is not tracked.
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service owns the user-facing identity commands. It delegates credential
// state to the Store and notification delivery to the mailer; both are
// external collaborators from the protocol's point of view.
type Service struct {
	store      Store
	mail       mailer.Sender
	signer     token.Signer
	revoked    Revocations
	sessionTTL time.Duration
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewService(store Store, mail mailer.Sender, signer token.Signer, revoked Revocations, sessionTTL time.Duration, log *zap.SugaredLogger) *Service {
	return &Service{
		store:      store,
		mail:       mail,
		signer:     signer,
		revoked:    revoked,
		sessionTTL: sessionTTL,
		log:        log,
		now:        time.Now,
	}
}

// RegisterCommand creates a user and dispatches a confirmation email whose
// link points at ReturnUrl with token and userId appended.
type RegisterCommand struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	ReturnUrl string `json:"returnUrl"`
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*User, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "Email", cmd.Email)
	errs = validation.Email(errs, "Email", cmd.Email)
	errs = validation.NotEmpty(errs, "Password", cmd.Password)
	if cmd.Password != "" && len(cmd.Password) < minPasswordLength {
		errs = errs.Fail("Password", validation.CodePasswordTooShort, "")
	}
	errs = validation.NotEmpty(errs, "ReturnUrl", cmd.ReturnUrl)
	errs = validation.AbsoluteURL(errs, "ReturnUrl", cmd.ReturnUrl)
	if len(errs) > 0 {
		return nil, errs
	}

	user := User{ID: uuid.NewString(), Email: cmd.Email, CreatedAt: s.now().UTC()}
	created, err := s.store.CreateUser(ctx, user, cmd.Password)
	if err == ErrDuplicateEmail {
		return nil, validation.Errors{}.Fail("Email", validation.CodeDuplicateEmail, "")
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	confirm, err := s.store.GenerateConfirmationToken(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("confirmation token: %w", err)
	}
	link := appendQuery(cmd.ReturnUrl, "userId="+created.ID+"&token="+confirm)
	body := fmt.Sprintf("Welcome to Gomsle!\n\nConfirm your email address: %s\n", link)
	if err := s.mail.Send(ctx, created.Email, "Confirm your email", body); err != nil {
		// The user row already exists; the command still fails so the
		// caller knows no confirmation mail went out.
		return nil, fmt.Errorf("send confirmation: %w", err)
	}
	s.log.Infow("user registered", "user", created.ID)
	return created, nil
}

// ConfirmCommand redeems a confirmation token.
type ConfirmCommand struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func (s *Service) Confirm(ctx context.Context, cmd ConfirmCommand) error {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "UserId", cmd.UserID)
	errs = validation.NotEmpty(errs, "Token", cmd.Token)
	if len(errs) > 0 {
		return errs
	}
	err := s.store.ConfirmEmail(ctx, cmd.UserID, cmd.Token)
	if err == ErrInvalidToken {
		return validation.Errors{}.Fail("Token", validation.CodeInvalidToken, "")
	}
	if err == ErrNotFound {
		return validation.Errors{}.Fail("UserId", validation.CodeUserNotFound, "")
	}
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	return nil
}

// ForgotCommand dispatches a password-reset email. An unknown email is
// reported as success so the endpoint cannot be used to enumerate accounts.
type ForgotCommand struct {
	Email    string `json:"email"`
	ResetUrl string `json:"resetUrl"`
}

func (s *Service) Forgot(ctx context.Context, cmd ForgotCommand) error {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "Email", cmd.Email)
	errs = validation.Email(errs, "Email", cmd.Email)
	errs = validation.NotEmpty(errs, "ResetUrl", cmd.ResetUrl)
	errs = validation.AbsoluteURL(errs, "ResetUrl", cmd.ResetUrl)
	if len(errs) > 0 {
		return errs
	}

	user, err := s.store.FindUserByEmail(ctx, cmd.Email)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	reset, err := s.store.GeneratePasswordResetToken(ctx, user)
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	link := appendQuery(cmd.ResetUrl, "userId="+user.ID+"&token="+reset)
	body := fmt.Sprintf("A password reset was requested for your account.\n\nReset your password: %s\n\nIf this wasn't you, ignore this email.\n", link)
	if err := s.mail.Send(ctx, user.Email, "Reset your password", body); err != nil {
		return fmt.Errorf("send reset: %w", err)
	}
	return nil
}

// ResetCommand redeems a reset token and replaces the password.
type ResetCommand struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Service) Reset(ctx context.Context, cmd ResetCommand) error {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "UserId", cmd.UserID)
	errs = validation.NotEmpty(errs, "Token", cmd.Token)
	errs = validation.NotEmpty(errs, "Password", cmd.Password)
	if cmd.Password != "" && len(cmd.Password) < minPasswordLength {
		errs = errs.Fail("Password", validation.CodePasswordTooShort, "")
	}
	if len(errs) > 0 {
		return errs
	}
	err := s.store.ResetPassword(ctx, cmd.UserID, cmd.Token, cmd.Password)
	if err == ErrInvalidToken {
		return validation.Errors{}.Fail("Token", validation.CodeInvalidToken, "")
	}
	if err == ErrNotFound {
		return validation.Errors{}.Fail("UserId", validation.CodeUserNotFound, "")
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// LoginCommand authenticates a user and issues a session token.
type LoginCommand struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the issued interactive session.
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	UserID    string `json:"userId"`
	Email     string `json:"email"`
}

func (s *Service) Login(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "Email", cmd.Email)
	errs = validation.NotEmpty(errs, "Password", cmd.Password)
	if len(errs) > 0 {
		return nil, errs
	}

	user, err := s.verifyCredentials(ctx, cmd.Email, cmd.Password)
	if err != nil {
		return nil, err
	}
	if !user.EmailConfirmed {
		return nil, validation.Errors{}.Fail("Email", validation.CodeEmailNotConfirmed, "")
	}
	if user.TwoFactorEnabled {
		return nil, validation.Errors{}.Fail("", validation.CodeTwoFactorRequired, "")
	}

	raw, err := s.signer.Sign(ctx, token.Claims{
		"sub":     user.ID,
		"email":   user.Email,
		"purpose": "session",
		"jti":     uuid.NewString(),
	}, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	s.log.Infow("user logged in", "user", user.ID)
	return &LoginResult{
		Token:     raw,
		ExpiresIn: int(s.sessionTTL.Seconds()),
		UserID:    user.ID,
		Email:     user.Email,
	}, nil
}

// TwoFactorProvidersCommand lists available second factors after a
// first-factor credential check.
type TwoFactorProvidersCommand struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) GetTwoFactorProviders(ctx context.Context, cmd TwoFactorProvidersCommand) ([]string, error) {
	var errs validation.Errors
	errs = validation.NotEmpty(errs, "Email", cmd.Email)
	errs = validation.NotEmpty(errs, "Password", cmd.Password)
	if len(errs) > 0 {
		return nil, errs
	}
	user, err := s.verifyCredentials(ctx, cmd.Email, cmd.Password)
	if err != nil {
		return nil, err
	}
	providers, err := s.store.TwoFactorProviders(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("two factor providers: %w", err)
	}
	return providers, nil
}

// verifyCredentials reports one uniform failure for unknown email and wrong
// password alike.
func (s *Service) verifyCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err == ErrNotFound {
		return nil, validation.Errors{}.Fail("", validation.CodeInvalidCredentials, "")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !s.store.VerifyPassword(ctx, user, password) {
		return nil, validation.Errors{}.Fail("", validation.CodeInvalidCredentials, "")
	}
	return user, nil
}

// VerifySession turns a session token back into a principal; consumed by
// pkg/middleware.Session.
func (s *Service) VerifySession(ctx context.Context, raw string) (middleware.Principal, error) {
	claims, err := s.signer.Verify(ctx, raw)
	if err != nil {
		return middleware.Principal{}, err
	}
	if claims.String("purpose") != "session" || claims.String("sub") == "" {
		return middleware.Principal{}, fmt.Errorf("not a session token")
	}
	if s.revoked != nil {
		if jti := claims.String("jti"); jti != "" {
			revoked, err := s.revoked.IsRevoked(ctx, jti)
			if err != nil {
				return middleware.Principal{}, fmt.Errorf("revocation check: %w", err)
			}
			if revoked {
				return middleware.Principal{}, fmt.Errorf("session revoked")
			}
		}
	}
	return middleware.Principal{
		UserID:        claims.String("sub"),
		Email:         claims.String("email"),
		Authenticated: true,
	}, nil
}

// SessionJTI extracts the token id used by logout revocation.
func (s *Service) SessionJTI(ctx context.Context, raw string) (string, time.Duration, error) {
	claims, err := s.signer.Verify(ctx, raw)
	if err != nil {
		return "", 0, err
	}
	jti := claims.String("jti")
	if jti == "" {
		return "", 0, fmt.Errorf("no jti")
	}
	return jti, s.sessionTTL, nil
}

func appendQuery(u, q string) string {
	if strings.Contains(u, "?") {
		return u + "&" + q
	}
	return u + "?" + q
}
