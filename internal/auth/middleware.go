package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const roleKey contextKey = "role"

// HeaderAPIKey is the request header carrying the key.
const HeaderAPIKey = "apikey"

// RequireAPIKey rejects requests without a valid key with 401.
//
// The key is read from the apikey header, then an "Authorization: Bearer"
// header, then an apikey query parameter (browsers cannot set headers on a
// websocket handshake).
//
// A nil KeyService means the server runs without a secret: every request is
// let through as anon. That is the development setup.
func RequireAPIKey(keys *KeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keys == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey, RoleAnon)))
				return
			}

			role, err := keys.Validate(extractKey(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"a valid API key is required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey, role)))
		})
	}
}

// RoleFromContext returns the role RequireAPIKey stored in ctx.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleKey).(string)
	return role, ok && role != ""
}

func extractKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get(HeaderAPIKey)
}
