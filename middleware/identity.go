package middleware

import (
	"context"
	"net/http"

	"notehub/internal/store"
)

type contextKey string

const userKey contextKey = "user"

// Identity resolves the viewer behind a request. Remote viewers identify
// themselves with the X-User-ID/X-User-Name headers (or user_id/user_name
// query params, since the browser WebSocket API cannot set headers); anything
// else falls back to the installation's own identity.
func Identity(fallback store.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := fallback

			id := r.Header.Get("X-User-ID")
			if id == "" {
				id = r.URL.Query().Get("user_id")
			}
			if id != "" {
				u = store.User{ID: id, Name: r.Header.Get("X-User-Name")}
				if u.Name == "" {
					u.Name = r.URL.Query().Get("user_name")
				}
				if u.Name == "" {
					u.Name = id
				}
			}

			ctx := context.WithValue(r.Context(), userKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the viewer resolved by Identity.
func UserFrom(ctx context.Context) store.User {
	if u, ok := ctx.Value(userKey).(store.User); ok {
		return u
	}
	return store.User{}
}
