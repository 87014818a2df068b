package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Caller identifies the API key owner a request authenticated as.
type Caller struct {
	// Owner can be empty when the configured key carries no label.
	Owner string
}

type contextKey string

const callerContextKey contextKey = "caller"

func CallerFromContext(ctx context.Context) (Caller, error) {
	caller, ok := ctx.Value(callerContextKey).(Caller)
	if !ok {
		return Caller{}, errors.New("caller not found in context")
	}
	return caller, nil
}

type Provider interface {
	// Authenticate must call next with the caller attached to the request
	// context, or write an http error itself.
	Authenticate(next http.Handler) http.Handler
}

// RouteAuthMiddleware guards every route except CORS preflight, the docs
// endpoints and the liveness probe. A nil provider disables authentication.
type RouteAuthMiddleware struct {
	provider Provider
}

func NewRouteAuthMiddleware(provider Provider) *RouteAuthMiddleware {
	return &RouteAuthMiddleware{provider: provider}
}

func (m *RouteAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.provider == nil {
			next.ServeHTTP(w, r)
			return
		}

		// Skip auth for OPTIONS (CORS preflight) requests
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/docs") || r.URL.Path == "/v1/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		m.provider.Authenticate(next).ServeHTTP(w, r)
	})
}
