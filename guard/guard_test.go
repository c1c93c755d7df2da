package guard_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-session-broker/guard"
	"github.com/stretchr/testify/require"
)

type fakeSession bool

func (f fakeSession) IsAuthenticated() bool { return bool(f) }

var (
	home = guard.Route{Name: "Home", Pattern: "/"}
	mail = guard.Route{Name: "Mail", Pattern: "/mail", RequiresAuth: true}
)

func TestCanEnter(t *testing.T) {
	tests := []struct {
		authenticated bool
		requiresAuth  bool
		want          bool
	}{
		{false, false, true},
		{false, true, false},
		{true, false, true},
		{true, true, true},
	}
	for _, tt := range tests {
		g := guard.New(fakeSession(tt.authenticated), "/")
		require.Equal(t, tt.want, g.CanEnter(tt.requiresAuth), "authenticated=%v requiresAuth=%v", tt.authenticated, tt.requiresAuth)
	}
}

func TestCheck(t *testing.T) {
	g := guard.New(fakeSession(false), "/welcome")
	require.Equal(t, guard.Decision{Allowed: true}, g.Check(home))
	require.Equal(t, guard.Decision{RedirectTo: "/welcome"}, g.Check(mail))

	require.Equal(t, guard.Decision{RedirectTo: "/"}, guard.New(fakeSession(false), "").Check(mail))
	require.Equal(t, guard.Decision{Allowed: true}, guard.New(fakeSession(true), "/").Check(mail))
}

func TestMiddleware(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	t.Run("denied redirects", func(t *testing.T) {
		h := guard.New(fakeSession(false), "/").Middleware(mail)(ok)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/mail", nil))

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("allowed passes through", func(t *testing.T) {
		h := guard.New(fakeSession(true), "/").Middleware(mail)(ok)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/mail", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("public route never redirects", func(t *testing.T) {
		h := guard.New(fakeSession(false), "/").Middleware(home)(ok)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
