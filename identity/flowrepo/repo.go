// Package flowrepo tracks interactive authorization flows between the moment
// the provider URL is opened and the moment its redirect arrives.
package flowrepo

import "time"

type Flow struct {
	CodeVerifier string
	Nonce        string
	RedirectURI  string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flow *Flow) error
	Get(state string) (*Flow, error)
	Delete(state string) error
}
