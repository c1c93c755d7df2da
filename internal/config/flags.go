package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Overrides holds values supplied on the command line.
type Overrides struct {
	Port                  string
	Env                   string
	ClientID              string
	Authority             string
	Issuer                string
	RedirectURL           string
	PostLogoutRedirectURL string
	Scopes                []string
	InteractiveTimeout    time.Duration
}

// BindFlags registers the override flags on fs.
func (o *Overrides) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "p", "", "HTTP listen port ("+portEnvVar+")")
	fs.StringVar(&o.Env, "env", "", "environment name ("+envEnvVar+")")
	fs.StringVarP(&o.ClientID, "client-id", "c", "", "OAuth client identifier ("+clientIDEnvVar+")")
	fs.StringVar(&o.Authority, "authority", "", "identity provider authority URL ("+authorityEnvVar+")")
	fs.StringVar(&o.Issuer, "issuer", "", "expected discovery issuer when it differs from the authority ("+issuerEnvVar+")")
	fs.StringVar(&o.RedirectURL, "redirect-url", "", "loopback redirect URL for interactive flows ("+redirectURLEnvVar+")")
	fs.StringVar(&o.PostLogoutRedirectURL, "post-logout-redirect-url", "", "where the provider sends the browser after sign-out ("+postLogoutRedirectURLEnvVar+")")
	fs.StringSliceVar(&o.Scopes, "scope", nil, "requested scope, repeatable ("+scopesEnvVar+")")
	fs.DurationVar(&o.InteractiveTimeout, "interactive-timeout", 0, "how long to wait for an interactive flow ("+interactiveTimeoutEnvVar+")")
}
