package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	clientIDEnvVar              = "CLIENT_ID"
	authorityEnvVar             = "AUTHORITY"
	issuerEnvVar                = "ISSUER"
	redirectURLEnvVar           = "REDIRECT_URL"
	postLogoutRedirectURLEnvVar = "POST_LOGOUT_REDIRECT_URL"
	scopesEnvVar                = "SCOPES"
	interactiveTimeoutEnvVar    = "INTERACTIVE_TIMEOUT"
)

// Scopes requested when nothing else is configured: reading the user's mail
// and profile.
var defaultScopes = []string{"Mail.Read", "User.Read"}

type Identity struct {
	overrides *Overrides
}

var _ IdentityConfig = Identity{}

func (i Identity) GetClientID() string {
	return stringValue(i.overrides.ClientID, clientIDEnvVar, "")
}

// GetAuthority returns the issuer base URL used for OIDC discovery.
func (i Identity) GetAuthority() string {
	return strings.TrimRight(stringValue(i.overrides.Authority, authorityEnvVar, "https://login.microsoftonline.com/common/v2.0"), "/")
}

// GetIssuer returns the issuer expected in the discovery document when it
// differs from the authority, as with multi-tenant authorities that publish
// a templated issuer. Empty means the authority itself.
func (i Identity) GetIssuer() string {
	return stringValue(i.overrides.Issuer, issuerEnvVar, "")
}

// GetRedirectURL returns the loopback URL the interactive flow listens on.
// A port of 0 selects a free port per flow.
func (i Identity) GetRedirectURL() string {
	return stringValue(i.overrides.RedirectURL, redirectURLEnvVar, "http://localhost:8400/callback")
}

func (i Identity) GetPostLogoutRedirectURL() string {
	return stringValue(i.overrides.PostLogoutRedirectURL, postLogoutRedirectURLEnvVar, "")
}

func (i Identity) GetScopes() []string {
	if len(i.overrides.Scopes) > 0 {
		return append([]string(nil), i.overrides.Scopes...)
	}
	if raw := GetEnv(scopesEnvVar, ""); raw != "" {
		return strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	}
	return append([]string(nil), defaultScopes...)
}

func (i Identity) GetInteractiveTimeout() time.Duration {
	if i.overrides.InteractiveTimeout > 0 {
		return i.overrides.InteractiveTimeout
	}
	raw := GetEnv(interactiveTimeoutEnvVar, "")
	if raw == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("value", raw).Msg("Invalid " + interactiveTimeoutEnvVar + ", using default")
		return 5 * time.Minute
	}
	return d
}
