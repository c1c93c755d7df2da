package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-broker/guard"
	"github.com/jrsteele09/go-session-broker/identity"
	"github.com/jrsteele09/go-session-broker/identity/fakeclient"
	"github.com/jrsteele09/go-session-broker/internal/config"
	"github.com/jrsteele09/go-session-broker/server"
	"github.com/jrsteele09/go-session-broker/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testAccount = identity.Account{ID: "a-1", Name: "Ada", Username: "ada@example.com"}

type testFixture struct {
	client  *fakeclient.FakeClient
	manager *session.Manager
	handler http.Handler
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	client := fakeclient.New()
	client.SignInAccount = testAccount
	client.SilentToken = identity.Token{
		AccessToken: "secret-token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
		Scopes:      []string{"Mail.Read"},
	}
	m := session.NewManager(client, []string{"Mail.Read"}, session.WithLogger(zerolog.Nop()))
	m.Initialize()

	cfg := config.New(&config.Overrides{Env: "TEST"})
	return &testFixture{
		client:  client,
		manager: m,
		handler: server.New(cfg, m, guard.New(m, server.RouteHome)),
	}
}

func (f *testFixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatus(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "signed_out", body["status"])
	require.Equal(t, false, body["isAuthenticated"])
	require.Equal(t, session.DefaultDisplayName, body["displayName"])
	require.Equal(t, "", body["email"])
}

func TestProtectedViewsRedirectWhenSignedOut(t *testing.T) {
	f := setupTestFixture(t)

	for _, path := range []string{"/mail", "/conversations/42"} {
		rec := f.do(t, http.MethodGet, path)
		require.Equal(t, http.StatusSeeOther, rec.Code, path)
		require.Equal(t, server.RouteHome, rec.Header().Get("Location"))
	}
	// The guard never triggers token acquisition
	require.Zero(t, f.client.Count("AcquireTokenSilent"))
	require.Zero(t, f.client.Count("AcquireTokenInteractive"))
}

func TestSignInThenViews(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, server.RouteSignIn)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "signed_in", body["status"])
	require.Equal(t, "Ada", body["displayName"])
	require.Equal(t, "ada@example.com", body["email"])

	rec = f.do(t, http.MethodGet, "/mail")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret-token")
	token := decode(t, rec)["token"].(map[string]any)
	require.Equal(t, "Bearer", token["tokenType"])

	rec = f.do(t, http.MethodGet, "/conversations/42")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "42", decode(t, rec)["conversationId"])

	rec = f.do(t, http.MethodPost, server.RouteSignIn)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignInFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.client.SignInErr = fmt.Errorf("%w: access_denied", identity.ErrInteractionFailed)

	rec := f.do(t, http.MethodPost, server.RouteSignIn)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "interaction_failed", decode(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/")
	require.NotEmpty(t, decode(t, rec)["lastError"])

	rec = f.do(t, http.MethodPost, server.RouteClearError)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, decode(t, rec)["lastError"])
}

func TestTokenFailureKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.SignIn(context.Background())
	require.NoError(t, err)
	f.client.SilentErr = identity.ErrSilentRenewalFailed
	f.client.InteractErr = fmt.Errorf("%w: %w", identity.ErrInteractionFailed, identity.ErrProviderUnavailable)

	rec := f.do(t, http.MethodGet, "/mail")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.True(t, f.manager.IsAuthenticated())
}

func TestSignOut(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.SignIn(context.Background())
	require.NoError(t, err)
	f.client.SignOutErr = identity.ErrInteractionFailed

	rec := f.do(t, http.MethodPost, server.RouteSignOut)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "signed_out", body["status"])
	require.NotEmpty(t, body["lastError"])

	rec = f.do(t, http.MethodGet, "/mail")
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestNotFound(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodGet, "/nowhere")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decode(t, rec)["error"])
}
