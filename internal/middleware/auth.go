package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

type contextKey string

const serviceNameKey contextKey = "service_name"

const (
	ServiceTokenHeader = "X-Service-Token"
	ServiceNameHeader  = "X-Service-Name"
	UnknownService     = "unknown"
)

// ServiceNameFromContext returns the calling service recorded by ServiceAuth.
func ServiceNameFromContext(ctx context.Context) string {
	name, ok := ctx.Value(serviceNameKey).(string)
	if !ok || name == "" {
		return UnknownService
	}
	return name
}

// ServiceAuth admits requests carrying the shared service token and records
// the caller's service name in the request context.
func ServiceAuth(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(ServiceTokenHeader)
			if provided == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing service token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid service token")
				return
			}
			name := r.Header.Get(ServiceNameHeader)
			if name == "" {
				name = UnknownService
			}
			ctx := context.WithValue(r.Context(), serviceNameKey, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
