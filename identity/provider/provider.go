// Package provider implements identity.Client against an OAuth2/OIDC
// provider. Interactive operations run the authorization code flow with PKCE
// through a loopback redirect listener; silent renewal uses cached refresh
// tokens.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/identity/cache"
	"github.com/jrsteele09/go-session-broker/identity/flowrepo"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const defaultExpirySkew = 30 * time.Second

var _ identity.Client = (*Client)(nil)

type Client struct {
	config     config.IdentityConfig
	cache      cache.Repo
	flows      flowrepo.Repo
	opener     Opener
	httpClient *http.Client
	log        zerolog.Logger
	expirySkew time.Duration

	discoveryLock sync.RWMutex
	discovery     *discovery

	// cacheLock orders credential writes against cache resets. generation
	// advances on every reset; a write prepared under an older generation is
	// dropped so a renewal finishing after sign-out cannot restore the
	// account.
	cacheLock  sync.Mutex
	generation uint64
}

// errCacheReset reports a credential write dropped because the cache was
// reset while the operation was in flight.
var errCacheReset = errors.New("signed out while the operation was in flight")

// discovery is the provider metadata resolved on first use.
type discovery struct {
	provider           *oidc.Provider
	verifier           *oidc.IDTokenVerifier
	endpoint           oauth2.Endpoint
	revocationEndpoint string
	endSessionEndpoint string
}

type Option func(*Client)

// WithCache sets the credential cache. Defaults to an in-memory cache.
func WithCache(r cache.Repo) Option {
	return func(c *Client) { c.cache = r }
}

// WithFlowRepo sets where pending interactive flows are tracked.
func WithFlowRepo(r flowrepo.Repo) Option {
	return func(c *Client) { c.flows = r }
}

// WithOpener sets how authorization URLs are presented to the user.
// Defaults to the system browser.
func WithOpener(o Opener) Option {
	return func(c *Client) { c.opener = o }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithExpirySkew sets how long before expiry a cached access token stops
// being handed out.
func WithExpirySkew(d time.Duration) Option {
	return func(c *Client) { c.expirySkew = d }
}

// New creates a client for the provider described by cfg. No network access
// happens until the first provider operation.
func New(cfg config.IdentityConfig, opts ...Option) (*Client, error) {
	if cfg.GetClientID() == "" {
		return nil, fmt.Errorf("[provider New] client ID is required")
	}
	if _, err := url.Parse(cfg.GetAuthority()); err != nil || cfg.GetAuthority() == "" {
		return nil, fmt.Errorf("[provider New] invalid authority %q", cfg.GetAuthority())
	}
	redirect, err := url.Parse(cfg.GetRedirectURL())
	if err != nil {
		return nil, fmt.Errorf("[provider New] invalid redirect URL: %w", err)
	}
	if redirect.Scheme != "http" || redirect.Host == "" {
		return nil, fmt.Errorf("[provider New] redirect URL must be an http loopback address, got %q", cfg.GetRedirectURL())
	}

	c := &Client{
		config:     cfg,
		httpClient: http.DefaultClient,
		log:        log.With().Str("component", "identity").Logger(),
		expirySkew: defaultExpirySkew,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.NewInMemoryRepo()
	}
	if c.flows == nil {
		c.flows = flowrepo.NewInMemoryRepo(cfg.GetInteractiveTimeout())
	}
	if c.opener == nil {
		c.opener = BrowserOpener{Log: c.log}
	}
	return c, nil
}

// CachedAccount returns the first cached account. It only reads the local
// cache.
func (c *Client) CachedAccount() (*identity.Account, error) {
	entries, err := c.cache.List()
	if err != nil {
		return nil, fmt.Errorf("read credential cache: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	account := entries[0].Account
	return &account, nil
}

// cacheGeneration returns the generation credential writes must match.
func (c *Client) cacheGeneration() uint64 {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()
	return c.generation
}

// resetCache empties the credential cache and invalidates writes prepared
// before the reset. It returns the new generation.
func (c *Client) resetCache() (uint64, error) {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()
	c.generation++
	return c.generation, c.cache.Clear()
}

// updateEntry applies update to the cached entry for account, or to a new
// entry for account, and stores it unless the cache was reset since gen.
func (c *Client) updateEntry(gen uint64, account identity.Account, update func(*cache.Entry)) error {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()
	if gen != c.generation {
		return errCacheReset
	}
	entry, err := c.cache.Get(account.ID)
	if err != nil {
		entry = cache.Entry{Account: account}
	}
	update(&entry)
	if err := c.cache.Upsert(entry); err != nil {
		return fmt.Errorf("cache credentials: %w", err)
	}
	return nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, c.httpClient)
}

func (c *Client) discover(ctx context.Context) (*discovery, error) {
	c.discoveryLock.RLock()
	d := c.discovery
	c.discoveryLock.RUnlock()
	if d != nil {
		return d, nil
	}

	ctx = c.withHTTPClient(ctx)
	skipIssuerCheck := false
	if issuer := c.config.GetIssuer(); issuer != "" {
		ctx = oidc.InsecureIssuerURLContext(ctx, issuer)
		skipIssuerCheck = true
	}

	p, err := oidc.NewProvider(ctx, c.config.GetAuthority())
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", c.config.GetAuthority(), err)
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.Claims(&extra); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}

	endpoint := p.Endpoint()
	// Public client: the client ID travels in the form body.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	d = &discovery{
		provider: p,
		verifier: p.Verifier(&oidc.Config{
			ClientID:        c.config.GetClientID(),
			SkipIssuerCheck: skipIssuerCheck,
		}),
		endpoint:           endpoint,
		revocationEndpoint: extra.RevocationEndpoint,
		endSessionEndpoint: extra.EndSessionEndpoint,
	}

	c.discoveryLock.Lock()
	if c.discovery == nil {
		c.discovery = d
	}
	d = c.discovery
	c.discoveryLock.Unlock()

	c.log.Debug().Str("authority", c.config.GetAuthority()).Msg("Discovered identity provider")
	return d, nil
}

func (c *Client) oauth2Config(d *discovery, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.config.GetClientID(),
		Endpoint:    d.endpoint,
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}
