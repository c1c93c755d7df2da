package provider

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-broker/identity"
	"golang.org/x/oauth2"
)

// Scopes every interactive request carries so the response includes an ID
// token and a refresh token.
var baseScopes = []string{oidc.ScopeOpenID, "profile", oidc.ScopeOfflineAccess}

type idClaims struct {
	Subject           string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

func (c idClaims) account() identity.Account {
	return identity.Account{
		ID:       c.Subject,
		Name:     c.Name,
		Username: c.PreferredUsername,
		Mail:     c.Email,
	}
}

// verifyIDToken checks the ID token in tok, if any. An empty nonce skips the
// nonce comparison, as refresh responses carry none.
func verifyIDToken(ctx context.Context, d *discovery, tok *oauth2.Token, nonce string) (*idClaims, string, error) {
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, "", nil
	}

	idToken, err := d.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, "", fmt.Errorf("ID token verification failed: %w", err)
	}

	// Validate nonce to prevent replay attacks
	if nonce != "" && idToken.Nonce != nonce {
		return nil, "", fmt.Errorf("invalid nonce")
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, "", fmt.Errorf("failed to extract claims: %w", err)
	}
	return &claims, rawIDToken, nil
}

// withBaseScopes returns baseScopes followed by scopes, without duplicates.
func withBaseScopes(scopes []string) []string {
	out := slices.Clone(baseScopes)
	for _, s := range scopes {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// grantedScopes returns the scopes the token response reports, falling back
// to what was requested when the provider omits them.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		return strings.Fields(raw)
	}
	return slices.Clone(requested)
}

func missingScopes(granted, requested []string) []string {
	var missing []string
	for _, s := range requested {
		if !slices.Contains(granted, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

func toToken(tok *oauth2.Token, scopes []string) identity.Token {
	return identity.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.Type(),
		ExpiresAt:   tok.Expiry,
		Scopes:      scopes,
	}
}
