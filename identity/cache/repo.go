// Package cache holds the credentials obtained from the identity provider for
// the lifetime of the process.
package cache

import (
	"time"

	"github.com/jrsteele09/go-session-broker/identity"
)

type Entry struct {
	Account identity.Account

	// Refresh is what silent renewal depends on; the access token is kept so
	// a still-valid one can be returned without a round trip.
	RefreshToken string
	AccessToken  string
	TokenType    string
	IDToken      string

	// Scopes the provider granted to the access token.
	Scopes    []string
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repo interface {
	Upsert(entry Entry) error
	Get(accountID string) (Entry, error)
	// List returns entries oldest first.
	List() ([]Entry, error)
	Delete(accountID string) error
	Clear() error
}
