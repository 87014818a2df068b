package auth

import (
	"context"
	"net/http"
	"strings"
)

// KeyAuthProvider authenticates requests against a static bearer-key map.
type KeyAuthProvider struct {
	keyToOwner map[string]string
}

func NewKeyAuthProvider(keyToOwner map[string]string) *KeyAuthProvider {
	return &KeyAuthProvider{
		keyToOwner: keyToOwner,
	}
}

func (p *KeyAuthProvider) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")

		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "invalid authorization header", http.StatusBadRequest)
			return
		}

		authToken := strings.TrimPrefix(authHeader, "Bearer ")
		if authToken == "" {
			http.Error(w, "invalid auth token format", http.StatusBadRequest)
			return
		}

		owner, ok := p.keyToOwner[authToken]
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), callerContextKey, Caller{Owner: owner})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
