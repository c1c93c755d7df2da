// Package guard gates protected destinations on the session's authentication
// state. It only reads state; it never acquires tokens or starts a sign-in.
package guard

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StateReader is the part of the session the guard consults.
type StateReader interface {
	IsAuthenticated() bool
}

// Route declares a destination and whether reaching it requires a signed-in
// user.
type Route struct {
	Name         string
	Pattern      string
	RequiresAuth bool
}

// Decision is the outcome of a guard check. RedirectTo is set when the
// transition is denied.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

type Guard struct {
	session     StateReader
	publicEntry string
	log         zerolog.Logger
}

// New returns a guard that sends denied transitions to publicEntry.
func New(session StateReader, publicEntry string) *Guard {
	if publicEntry == "" {
		publicEntry = "/"
	}
	return &Guard{
		session:     session,
		publicEntry: publicEntry,
		log:         log.With().Str("component", "guard").Logger(),
	}
}

// CanEnter reports whether a destination with the given requirement may be
// entered now.
func (g *Guard) CanEnter(requiresAuth bool) bool {
	return !requiresAuth || g.session.IsAuthenticated()
}

func (g *Guard) Check(route Route) Decision {
	if g.CanEnter(route.RequiresAuth) {
		return Decision{Allowed: true}
	}
	return Decision{RedirectTo: g.publicEntry}
}

// Middleware redirects requests for route to the public entry point while
// nobody is signed in.
func (g *Guard) Middleware(route Route) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := g.Check(route)
			if !decision.Allowed {
				g.log.Debug().Str("route", route.Name).Str("path", r.URL.Path).Msg("Not signed in, redirecting")
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
				return
			}
			next(w, r)
		}
	}
}
