package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notehub/internal/store"
)

func resolveUser(t *testing.T, fallback store.User, mutate func(*http.Request)) store.User {
	t.Helper()
	var got store.User
	h := Identity(fallback)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	if mutate != nil {
		mutate(req)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestIdentityFallsBackToLocalUser(t *testing.T) {
	local := store.User{ID: "local", Name: "Brave Otter"}
	got := resolveUser(t, local, nil)
	assert.Equal(t, local, got)
}

func TestIdentityPrefersHeaders(t *testing.T) {
	got := resolveUser(t, store.User{ID: "local"}, func(r *http.Request) {
		r.Header.Set("X-User-ID", "alice")
		r.Header.Set("X-User-Name", "Alice")
	})
	assert.Equal(t, store.User{ID: "alice", Name: "Alice"}, got)
}

func TestIdentityReadsQueryParams(t *testing.T) {
	got := resolveUser(t, store.User{ID: "local"}, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("user_id", "bob")
		q.Set("user_name", "Bob")
		r.URL.RawQuery = q.Encode()
	})
	assert.Equal(t, store.User{ID: "bob", Name: "Bob"}, got)
}

func TestIdentityDefaultsNameToID(t *testing.T) {
	got := resolveUser(t, store.User{ID: "local"}, func(r *http.Request) {
		r.Header.Set("X-User-ID", "carol")
	})
	assert.Equal(t, "carol", got.Name)
}

func TestUserFromBareContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	u := UserFrom(req.Context())
	require.Empty(t, u.ID)
}
