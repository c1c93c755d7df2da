package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/identity/cache"
	"github.com/jrsteele09/go-session-broker/identity/flowrepo"
	"golang.org/x/oauth2"
)

const callbackPage = `<!doctype html><html><body><p>%s You can close this window.</p></body></html>`

// callbackResult is what the loopback listener received from the provider.
type callbackResult struct {
	code string
	err  error
}

// interactiveResult is a completed authorization code exchange.
type interactiveResult struct {
	token      *oauth2.Token
	claims     *idClaims
	rawIDToken string
	scopes     []string
}

// SignInInteractive runs the authorization code flow and caches the
// credentials of the account that signed in, replacing any other.
func (c *Client) SignInInteractive(ctx context.Context) (identity.Account, error) {
	res, err := c.interactive(ctx, withBaseScopes(c.config.GetScopes()),
		oauth2.SetAuthURLParam("prompt", "select_account"))
	if err != nil {
		return identity.Account{}, err
	}
	if res.claims == nil {
		return identity.Account{}, fmt.Errorf("%w: no ID token in response", identity.ErrInteractionFailed)
	}

	account := res.claims.account()
	gen, err := c.resetCache()
	if err != nil {
		return identity.Account{}, fmt.Errorf("%w: reset credential cache: %w", identity.ErrInteractionFailed, err)
	}
	if err := c.store(gen, account, res); err != nil {
		return identity.Account{}, fmt.Errorf("%w: %w", identity.ErrInteractionFailed, err)
	}

	c.log.Info().Str("account_id", account.ID).Msg("Signed in")
	return account, nil
}

// AcquireTokenInteractive runs the authorization code flow hinted at
// account and returns the resulting access token.
func (c *Client) AcquireTokenInteractive(ctx context.Context, account identity.Account, scopes []string) (identity.Token, error) {
	gen := c.cacheGeneration()
	var opts []oauth2.AuthCodeOption
	if account.Username != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", account.Username))
	}

	res, err := c.interactive(ctx, withBaseScopes(scopes), opts...)
	if err != nil {
		return identity.Token{}, err
	}
	if res.claims != nil && res.claims.Subject != account.ID {
		return identity.Token{}, fmt.Errorf("%w: signed in as a different account", identity.ErrInteractionFailed)
	}
	if missing := missingScopes(res.scopes, scopes); len(missing) > 0 {
		return identity.Token{}, fmt.Errorf("%w: scopes not granted: %v", identity.ErrInteractionFailed, missing)
	}
	if err := c.store(gen, account, res); err != nil {
		return identity.Token{}, fmt.Errorf("%w: %w", identity.ErrInteractionFailed, err)
	}
	return toToken(res.token, res.scopes), nil
}

func (c *Client) store(gen uint64, account identity.Account, res *interactiveResult) error {
	return c.updateEntry(gen, account, func(entry *cache.Entry) {
		entry.AccessToken = res.token.AccessToken
		entry.TokenType = res.token.Type()
		entry.ExpiresAt = res.token.Expiry
		entry.Scopes = res.scopes
		if res.token.RefreshToken != "" {
			entry.RefreshToken = res.token.RefreshToken
		}
		if res.rawIDToken != "" {
			entry.IDToken = res.rawIDToken
		}
	})
}

// interactive runs one authorization code flow with PKCE: it listens on the
// loopback redirect, opens the authorization URL, waits for the redirect and
// exchanges the code. Every failure is reported as ErrInteractionFailed.
func (c *Client) interactive(ctx context.Context, scopes []string, opts ...oauth2.AuthCodeOption) (*interactiveResult, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return nil, identity.Classify(identity.ErrInteractionFailed, err)
	}

	ln, redirectURI, err := c.listen()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrInteractionFailed, err)
	}

	state := uuid.NewString()
	flow := &flowrepo.Flow{
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        generateRandomString(32),
		RedirectURI:  redirectURI.String(),
	}
	if err := c.flows.Upsert(state, flow); err != nil {
		ln.Close()
		return nil, fmt.Errorf("%w: %w", identity.ErrInteractionFailed, err)
	}
	defer c.flows.Delete(state)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPattern(redirectURI), callbackHandler(state, results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	oauthCfg := c.oauth2Config(d, redirectURI.String(), scopes)
	authOpts := append([]oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(flow.CodeVerifier),
		oidc.Nonce(flow.Nonce),
	}, opts...)
	authURL := oauthCfg.AuthCodeURL(state, authOpts...)

	c.log.Debug().Str("redirect_uri", redirectURI.String()).Msg("Starting interactive flow")
	if err := c.opener.Open(ctx, authURL); err != nil {
		return nil, fmt.Errorf("%w: open authorization URL: %w", identity.ErrInteractionFailed, err)
	}

	timeout := c.config.GetInteractiveTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result callbackResult
	select {
	case result = <-results:
	case <-ctx.Done():
		return nil, identity.Classify(identity.ErrInteractionFailed, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response from the provider within %s", identity.ErrInteractionFailed, timeout)
	}
	if result.err != nil {
		return nil, result.err
	}

	// The flow must still be pending
	pending, err := c.flows.Get(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrInteractionFailed, err)
	}

	// Exchange authorization code for tokens using standard oauth2 library
	token, err := oauthCfg.Exchange(c.withHTTPClient(ctx), result.code, oauth2.VerifierOption(pending.CodeVerifier))
	if err != nil {
		return nil, identity.Classify(identity.ErrInteractionFailed, fmt.Errorf("token exchange: %w", err))
	}

	claims, rawIDToken, err := verifyIDToken(c.withHTTPClient(ctx), d, token, pending.Nonce)
	if err != nil {
		return nil, identity.Classify(identity.ErrInteractionFailed, err)
	}

	return &interactiveResult{
		token:      token,
		claims:     claims,
		rawIDToken: rawIDToken,
		scopes:     grantedScopes(token, scopes),
	}, nil
}

// listen binds the loopback redirect address. A configured port of 0 binds
// a free port, and the returned redirect URI names it.
func (c *Client) listen() (net.Listener, *url.URL, error) {
	redirect, err := url.Parse(c.config.GetRedirectURL())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redirect URL: %w", err)
	}

	port := redirect.Port()
	if port == "" {
		port = "80"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(redirect.Hostname(), port))
	if err != nil {
		return nil, nil, fmt.Errorf("listen for redirect: %w", err)
	}

	if port == "0" {
		_, actual, err := net.SplitHostPort(ln.Addr().String())
		if err != nil {
			ln.Close()
			return nil, nil, fmt.Errorf("listen for redirect: %w", err)
		}
		redirect.Host = net.JoinHostPort(redirect.Hostname(), actual)
	}
	return ln, redirect, nil
}

func callbackPattern(redirect *url.URL) string {
	if redirect.Path == "" {
		return "/"
	}
	return redirect.Path
}

// callbackHandler receives the provider redirect. Both query parameters and
// form_post bodies are accepted.
func callbackHandler(expectedState string, results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("state") != expectedState {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		var result callbackResult
		if errorParam := r.FormValue("error"); errorParam != "" {
			result.err = fmt.Errorf("%w: %s", identity.ErrInteractionFailed, errorParam)
			if desc := r.FormValue("error_description"); desc != "" {
				result.err = fmt.Errorf("%w: %s - %s", identity.ErrInteractionFailed, errorParam, desc)
			}
		} else if code := r.FormValue("code"); code != "" {
			result.code = code
		} else {
			result.err = fmt.Errorf("%w: %w", identity.ErrInteractionFailed, errors.New("missing code parameter"))
		}

		select {
		case results <- result:
		default:
			http.Error(w, "Authorization already completed", http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if result.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, callbackPage, "Authorization failed.")
			return
		}
		fmt.Fprintf(w, callbackPage, "Authorization complete.")
	}
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
