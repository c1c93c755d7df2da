package config

import "time"

type Config interface {
	EnvConfig
	IdentityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

// IdentityConfig describes the identity provider registration the broker
// authenticates against.
type IdentityConfig interface {
	GetClientID() string
	GetAuthority() string
	GetIssuer() string
	GetRedirectURL() string
	GetPostLogoutRedirectURL() string
	GetScopes() []string
	GetInteractiveTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Identity
}

// New returns the configuration read from the environment. Non-empty
// fields of the given overrides (usually bound to command-line flags) take
// precedence over the environment.
func New(overrides ...*Overrides) Config {
	o := &Overrides{}
	if len(overrides) > 0 && overrides[0] != nil {
		o = overrides[0]
	}
	return mainConfig{
		EnvVars:  EnvVars{overrides: o},
		Identity: Identity{overrides: o},
	}
}
