package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// Role is the caller role granted by an API key.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleDoctor Role = "Doctor"
)

// APIKeys maps the configured keys to roles. Empty keys never match.
type APIKeys struct {
	Admin  string
	Doctor string
}

func (k APIKeys) lookup(key string) (Role, bool) {
	switch {
	case k.Admin != "" && secureEqual(key, k.Admin):
		return RoleAdmin, true
	case k.Doctor != "" && secureEqual(key, k.Doctor):
		return RoleDoctor, true
	}
	return "", false
}

// APIKeyRole resolves the x-api-key header to a role
func APIKeyRole(keys APIKeys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("x-api-key")
			if apiKey == "" {
				writeJSON(w, http.StatusUnauthorized, `{"error":"Missing API key"}`)
				return
			}

			role, ok := keys.lookup(apiKey)
			if !ok {
				writeJSON(w, http.StatusForbidden, `{"error":"Invalid API key"}`)
				return
			}

			if entry, ok := r.Context().Value(accessLogKey).(*accessLog); ok {
				entry.role = role
			}
			ctx := context.WithValue(r.Context(), RoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRole extracts the caller role from context
func GetRole(ctx context.Context) Role {
	if role, ok := ctx.Value(RoleKey).(Role); ok {
		return role
	}
	return ""
}

// RequireRole admits only callers holding one of roles
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			if role == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.WriteHeader(http.StatusForbidden)
		})
	}
}

// BasicAuth gates internal endpoints behind a single user and password
func BasicAuth(user, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", "Basic")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			// both compares always run
			userOK := secureEqual(u, user)
			passOK := secureEqual(p, password)
			if !userOK || !passOK {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
