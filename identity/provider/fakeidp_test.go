package provider_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-broker/identity/provider"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "test-client"
	testKeyID    = "test-key"
)

type authRequest struct {
	challenge   string
	nonce       string
	redirectURI string
	scope       string
}

type fakeUser struct {
	subject  string
	name     string
	username string
	email    string
}

// fakeIDP is an OIDC provider on httptest supporting the authorization code
// flow with PKCE, refresh tokens, revocation and end-session.
type fakeIDP struct {
	t   *testing.T
	srv *httptest.Server
	key *rsa.PrivateKey

	mu            sync.Mutex
	user          fakeUser
	expiresIn     int
	denyWith      string
	codes         map[string]authRequest
	refreshTokens map[string]string // refresh token -> granted scope
	revoked       []string
	authorizeReqs []url.Values
	tokenRequests int
	logoutReqs    []url.Values
	issued        int
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIDP{
		t:             t,
		key:           key,
		expiresIn:     3600,
		codes:         make(map[string]authRequest),
		refreshTokens: make(map[string]string),
		user: fakeUser{
			subject:  "user-1",
			name:     "Ada Lovelace",
			username: "ada@example.com",
			email:    "ada.lovelace@example.com",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("GET /jwks", f.jwks)
	mux.HandleFunc("GET /authorize", f.authorize)
	mux.HandleFunc("POST /token", f.token)
	mux.HandleFunc("POST /revoke", f.revoke)
	mux.HandleFunc("GET /logout", f.logout)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// opener follows the authorization URL the way a browser would, which lands
// on the client's loopback redirect.
func (f *fakeIDP) opener() provider.Opener {
	return provider.OpenerFunc(func(ctx context.Context, u string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := f.srv.Client().Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})
}

func (f *fakeIDP) setUser(u fakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = u
}

func (f *fakeIDP) setExpiresIn(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiresIn = seconds
}

func (f *fakeIDP) deny(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denyWith = code
}

// invalidateRefreshTokens simulates revoked consent.
func (f *fakeIDP) invalidateRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshTokens = make(map[string]string)
}

func (f *fakeIDP) tokenRequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenRequests
}

func (f *fakeIDP) lastAuthorize() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.authorizeReqs)
	return f.authorizeReqs[len(f.authorizeReqs)-1]
}

func (f *fakeIDP) discovery(w http.ResponseWriter, r *http.Request) {
	base := f.srv.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                base,
		"authorization_endpoint":                base + "/authorize",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/jwks",
		"revocation_endpoint":                   base + "/revoke",
		"end_session_endpoint":                  base + "/logout",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (f *fakeIDP) jwks(w http.ResponseWriter, r *http.Request) {
	pub := f.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (f *fakeIDP) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f.mu.Lock()
	f.authorizeReqs = append(f.authorizeReqs, q)
	denyWith := f.denyWith
	f.mu.Unlock()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("client_id") != testClientID {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	params := url.Values{}
	params.Set("state", q.Get("state"))
	if denyWith != "" {
		params.Set("error", denyWith)
		params.Set("error_description", "The user declined")
	} else {
		code := f.nextID("code")
		f.mu.Lock()
		f.codes[code] = authRequest{
			challenge:   q.Get("code_challenge"),
			nonce:       q.Get("nonce"),
			redirectURI: q.Get("redirect_uri"),
			scope:       q.Get("scope"),
		}
		f.mu.Unlock()
		params.Set("code", code)
	}
	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (f *fakeIDP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request")
		return
	}

	f.mu.Lock()
	f.tokenRequests++
	f.mu.Unlock()

	if r.PostForm.Get("client_id") != testClientID {
		oauthError(w, "invalid_client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.mu.Lock()
		req, ok := f.codes[r.PostForm.Get("code")]
		delete(f.codes, r.PostForm.Get("code"))
		f.mu.Unlock()
		if !ok || req.redirectURI != r.PostForm.Get("redirect_uri") {
			oauthError(w, "invalid_grant")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != req.challenge {
			oauthError(w, "invalid_grant")
			return
		}
		f.issue(w, req.scope, req.nonce, true)

	case "refresh_token":
		f.mu.Lock()
		scope, ok := f.refreshTokens[r.PostForm.Get("refresh_token")]
		delete(f.refreshTokens, r.PostForm.Get("refresh_token"))
		f.mu.Unlock()
		if !ok {
			oauthError(w, "invalid_grant")
			return
		}
		f.issue(w, scope, "", false)

	default:
		oauthError(w, "unsupported_grant_type")
	}
}

func (f *fakeIDP) issue(w http.ResponseWriter, scope, nonce string, withIDToken bool) {
	accessToken := f.nextID("at")
	refreshToken := f.nextID("rt")

	f.mu.Lock()
	f.refreshTokens[refreshToken] = scope
	user := f.user
	expiresIn := f.expiresIn
	f.mu.Unlock()

	// Resource scopes only, as providers report them
	var granted []string
	for _, s := range strings.Fields(scope) {
		if s != "openid" && s != "profile" && s != "offline_access" {
			granted = append(granted, s)
		}
	}

	resp := map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    expiresIn,
		"refresh_token": refreshToken,
		"scope":         strings.Join(granted, " "),
	}
	if withIDToken {
		resp["id_token"] = f.idToken(user, nonce)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeIDP) idToken(user fakeUser, nonce string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                f.srv.URL,
		"aud":                testClientID,
		"sub":                user.subject,
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"name":               user.name,
		"preferred_username": user.username,
		"email":              user.email,
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(f.key)
	require.NoError(f.t, err)
	return signed
}

func (f *fakeIDP) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	token := r.PostForm.Get("token")
	f.revoked = append(f.revoked, token)
	delete(f.refreshTokens, token)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIDP) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.logoutReqs = append(f.logoutReqs, r.URL.Query())
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIDP) nextID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	return fmt.Sprintf("%s-%d", prefix, f.issued)
}

func oauthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
