package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-broker/guard"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET /{$}", s.view(HomeView, s.StatusHandler()))

	// Session API
	s.RegisterRouteHandler("POST "+RouteSignIn, ChainMiddleware(s.SignInHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSignOut, ChainMiddleware(s.SignOutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteClearError, ChainMiddleware(s.ClearErrorHandler(), s.APIMiddleware()...))

	// Protected views
	s.RegisterRouteHandler("GET "+RouteMail, s.view(MailView, s.MailHandler()))
	s.RegisterRouteHandler("GET "+RouteConversation, s.view(ConversationView, s.ConversationHandler()))

	s.RegisterRouteHandler("/", s.view(NotFoundView, s.NotFoundHandler()))
}

// view wraps a view handler with the standard middleware and the guard check
// for route.
func (s *Server) view(route guard.Route, h http.HandlerFunc) http.HandlerFunc {
	return ChainMiddleware(h, s.ViewMiddleware(s.guard.Middleware(route))...)
}
