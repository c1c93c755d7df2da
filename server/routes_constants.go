package server

import "github.com/jrsteele09/go-session-broker/guard"

// Route path constants
const (
	RouteHome         = "/"
	RouteMail         = "/mail"
	RouteConversation = "/conversations/{id}"

	// Session API
	RouteSignIn     = "/auth/signin"
	RouteSignOut    = "/auth/signout"
	RouteClearError = "/auth/error/clear"
)

// Application views and whether they need a signed-in user
var (
	HomeView         = guard.Route{Name: "Home", Pattern: RouteHome}
	MailView         = guard.Route{Name: "Mail", Pattern: RouteMail, RequiresAuth: true}
	ConversationView = guard.Route{Name: "Conversation", Pattern: RouteConversation, RequiresAuth: true}
	NotFoundView     = guard.Route{Name: "NotFound", Pattern: "/"}
)
