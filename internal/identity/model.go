package identity

import "time"

// User is an end-user identity. Emails are unique case-insensitively.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	EmailConfirmed   bool
	TwoFactorEnabled bool
	CreatedAt        time.Time
}

// Token purposes for the single-use user tokens the store issues.
const (
	PurposeConfirm = "confirm"
	PurposeReset   = "reset"
)
