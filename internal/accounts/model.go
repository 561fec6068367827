package accounts

import "time"

// Account is a tenant organization owning applications and users.
type Account struct {
	ID        string
	Name      string // unique across accounts, matched case-insensitively
	CreatedAt time.Time
}

// Role controls mutation rights within an account.
type Role string

const (
	RoleOwner         Role = "Owner"
	RoleAdministrator Role = "Administrator"
	RoleMember        Role = "Member"
)

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdministrator:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants the capabilities of min.
// Owner ⊇ Administrator ⊇ Member.
func (r Role) AtLeast(min Role) bool { return r.rank() >= min.rank() }

// ParseRole maps a wire value onto a known role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner, RoleAdministrator, RoleMember:
		return Role(s), true
	}
	return "", false
}

// AccountUser binds a user to an account with a role. Exactly one Owner
// exists per account at all times.
type AccountUser struct {
	AccountID string
	UserID    string
	Role      Role
}

// Invitation is a pending membership offer, consumed on acceptance.
type Invitation struct {
	ID        string
	AccountID string
	Email     string
	Role      Role // never Owner
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the invitation can no longer be accepted.
func (i Invitation) Expired(now time.Time) bool { return now.After(i.ExpiresAt) }
