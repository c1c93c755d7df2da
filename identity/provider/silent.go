package provider

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/identity/cache"
	"golang.org/x/oauth2"
)

// AcquireTokenSilent returns the cached access token when it is still valid
// for scopes, and otherwise redeems the cached refresh token.
func (c *Client) AcquireTokenSilent(ctx context.Context, account identity.Account, scopes []string) (identity.Token, error) {
	gen := c.cacheGeneration()
	entry, err := c.cache.Get(account.ID)
	if err != nil {
		return identity.Token{}, fmt.Errorf("%w: no cached credential: %w", identity.ErrSilentRenewalFailed, err)
	}

	if c.usable(entry, scopes) {
		return entryToken(entry), nil
	}
	if entry.RefreshToken == "" {
		return identity.Token{}, fmt.Errorf("%w: no refresh token cached", identity.ErrSilentRenewalFailed)
	}

	d, err := c.discover(ctx)
	if err != nil {
		return identity.Token{}, identity.Classify(identity.ErrSilentRenewalFailed, err)
	}

	oauthCfg := c.oauth2Config(d, c.config.GetRedirectURL(), entry.Scopes)
	ctx = c.withHTTPClient(ctx)
	token, err := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: entry.RefreshToken}).Token()
	if err != nil {
		return identity.Token{}, identity.Classify(identity.ErrSilentRenewalFailed, fmt.Errorf("refresh: %w", err))
	}

	granted := grantedScopes(token, entry.Scopes)
	_, rawIDToken, err := verifyIDToken(ctx, d, token, "")
	if err != nil {
		c.log.Warn().Err(err).Msg("Ignoring ID token from refresh response")
	}
	err = c.updateEntry(gen, account, func(e *cache.Entry) {
		e.AccessToken = token.AccessToken
		e.TokenType = token.Type()
		e.ExpiresAt = token.Expiry
		e.Scopes = granted
		if token.RefreshToken != "" {
			e.RefreshToken = token.RefreshToken
		}
		if rawIDToken != "" {
			e.IDToken = rawIDToken
		}
	})
	if err != nil {
		return identity.Token{}, fmt.Errorf("%w: %w", identity.ErrSilentRenewalFailed, err)
	}

	if missing := missingScopes(granted, scopes); len(missing) > 0 {
		return identity.Token{}, fmt.Errorf("%w: consent required for %v", identity.ErrSilentRenewalFailed, missing)
	}
	c.log.Debug().Str("account_id", account.ID).Msg("Refreshed access token")
	return toToken(token, granted), nil
}

func (c *Client) usable(entry cache.Entry, scopes []string) bool {
	if entry.AccessToken == "" || len(missingScopes(entry.Scopes, scopes)) > 0 {
		return false
	}
	return entry.ExpiresAt.IsZero() || NowTimeFunc().Add(c.expirySkew).Before(entry.ExpiresAt)
}

func entryToken(entry cache.Entry) identity.Token {
	return identity.Token{
		AccessToken: entry.AccessToken,
		TokenType:   entry.TokenType,
		ExpiresAt:   entry.ExpiresAt,
		Scopes:      append([]string(nil), entry.Scopes...),
	}
}
