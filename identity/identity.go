// Package identity defines the boundary to the external identity provider:
// the account and token values it issues and the operations the rest of the
// broker may invoke on it. Nothing outside the Client implementations talks to
// the provider directly.
package identity

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Account is one authenticated identity as issued by the provider.
type Account struct {
	// ID is the provider's stable subject identifier.
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Mail     string `json:"mail,omitempty"`
}

// Token is a bearer credential for a set of scopes. It is handed to the
// caller that requested it and not retained by the session.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Scopes      []string
}

// String redacts the credential.
func (t Token) String() string {
	return "Token{scopes: " + strings.Join(t.Scopes, " ") + ", expires: " + t.ExpiresAt.Format(time.RFC3339) + "}"
}

// Covers reports whether the token was granted every scope in scopes.
func (t Token) Covers(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(t.Scopes, s) {
			return false
		}
	}
	return true
}

// Client is the sole bridge to the identity provider.
type Client interface {
	// SignInInteractive runs a provider-controlled interactive flow and
	// returns the newly authenticated account.
	SignInInteractive(ctx context.Context) (Account, error)
	// SignOutInteractive clears the provider session. Best effort.
	SignOutInteractive(ctx context.Context) error
	// CachedAccount returns the locally cached account, or nil when there is
	// none. It never touches the network.
	CachedAccount() (*Account, error)
	// AcquireTokenSilent renews a token from cached credentials without any
	// user interaction.
	AcquireTokenSilent(ctx context.Context, account Account, scopes []string) (Token, error)
	// AcquireTokenInteractive renews a token for a known account through an
	// interactive flow.
	AcquireTokenInteractive(ctx context.Context, account Account, scopes []string) (Token, error)
}
