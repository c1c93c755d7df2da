// Package server exposes the session over HTTP: the session API and the
// application views, the protected ones behind the navigation guard.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-broker/guard"
	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/rs/zerolog/log"
)

// SessionService is the session API the handlers use.
type SessionService interface {
	State() session.State
	DisplayName() string
	Email() string
	SignIn(ctx context.Context) (identity.Account, error)
	SignOut(ctx context.Context) error
	AcquireToken(ctx context.Context, scopes ...string) (identity.Token, error)
	ClearError()
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	sessions SessionService
	guard    *guard.Guard
}

func New(cfg config.EnvConfig, sessions SessionService, g *guard.Guard) *Server {
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		sessions: sessions,
		guard:    g,
	}
	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path := "", route
		if parts := strings.SplitN(route, " ", 2); len(parts) > 1 {
			method, path = parts[0], parts[1]
		}
		log.Debug().Str("method", method).Str("path", path).Msg("Route registered")
	}
}
