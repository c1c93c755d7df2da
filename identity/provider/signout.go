package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/identity/cache"
)

// SignOutInteractive revokes the cached tokens, ends the provider session and
// empties the credential cache. The cache is emptied even when the provider
// cannot be reached.
func (c *Client) SignOutInteractive(ctx context.Context) error {
	entries, err := c.cache.List()
	if err != nil {
		c.log.Err(err).Msg("Sign-out: failed to read credential cache")
	}
	defer func() {
		if _, err := c.resetCache(); err != nil {
			c.log.Err(err).Msg("Sign-out: failed to clear credential cache")
		}
	}()
	if len(entries) == 0 {
		return nil
	}

	d, err := c.discover(ctx)
	if err != nil {
		return identity.Classify(identity.ErrInteractionFailed, err)
	}

	var errs []error
	if d.revocationEndpoint != "" {
		for _, entry := range entries {
			// Revoke refresh token if present
			if entry.RefreshToken != "" {
				if err := c.revokeToken(ctx, d.revocationEndpoint, entry.RefreshToken, "refresh_token"); err != nil {
					errs = append(errs, err)
				}
			}
			// Revoke access token if present
			if entry.AccessToken != "" {
				if err := c.revokeToken(ctx, d.revocationEndpoint, entry.AccessToken, "access_token"); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	if d.endSessionEndpoint != "" {
		endSessionURL, err := c.endSessionURL(d.endSessionEndpoint, entries[len(entries)-1])
		if err != nil {
			errs = append(errs, err)
		} else if err := c.opener.Open(ctx, endSessionURL); err != nil {
			errs = append(errs, fmt.Errorf("end provider session: %w", err))
		}
	}

	if len(errs) > 0 {
		return identity.Classify(identity.ErrInteractionFailed, errors.Join(errs...))
	}
	c.log.Info().Int("accounts", len(entries)).Msg("Signed out")
	return nil
}

// revokeToken posts an RFC 7009 revocation request
func (c *Client) revokeToken(ctx context.Context, endpoint, token, tokenTypeHint string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", c.config.GetClientID())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("revoke %s: %w", tokenTypeHint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Err(err).Str("token_type", tokenTypeHint).Msg("Failed to revoke token")
		return fmt.Errorf("revoke %s: %w", tokenTypeHint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke %s: revocation endpoint returned %s", tokenTypeHint, resp.Status)
	}
	return nil
}

func (c *Client) endSessionURL(endpoint string, entry cache.Entry) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid end_session_endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", c.config.GetClientID())
	if entry.IDToken != "" {
		q.Set("id_token_hint", entry.IDToken)
	}
	if redirect := c.config.GetPostLogoutRedirectURL(); redirect != "" {
		q.Set("post_logout_redirect_uri", redirect)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
