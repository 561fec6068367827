package apps

import "time"

// Application is a tenant-owned relying party authenticating end users
// through one or more OIDC providers.
type Application struct {
	ID              string
	AccountID       string
	DisplayName     string
	AutoProvision   bool
	EnableProvision bool
	CreatedAt       time.Time
}

// OidcProviderConfig configures an external identity provider trusted by an
// application. At most one config per application has IsDefault set.
type OidcProviderConfig struct {
	ID            string
	ApplicationID string
	Name          string
	AuthorityUrl  string // absolute URI
	ClientID      string
	ClientSecret  string
	ResponseType  string
	Scopes        []string // ordered
	IsDefault     bool
	IsVisible     bool
}

// ResponseTypeAllowed reports whether rt is in the fixed allowed set.
func ResponseTypeAllowed(rt string) bool {
	switch rt {
	case "code", "id_token", "code id_token":
		return true
	}
	return false
}
