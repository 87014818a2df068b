package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty disables auth", input: "", want: map[string]string{}},
		{name: "labeled keys", input: "k1=alice, k2=bob", want: map[string]string{"k1": "alice", "k2": "bob"}},
		{name: "bare key", input: "k1", want: map[string]string{"k1": ""}},
		{name: "trailing comma", input: "k1=alice,", want: map[string]string{"k1": "alice"}},
		{name: "missing key", input: "=alice", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{APIKeys: tt.input}
			got, err := cfg.ParseAPIKeys()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKeys: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	provider := NewKeyAuthProvider(map[string]string{"secret": "ops"})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := NewRouteAuthMiddleware(provider).Middleware(next)

	tests := []struct {
		name       string
		method     string
		path       string
		authHeader string
		wantStatus int
	}{
		{name: "missing header", method: "GET", path: "/v1/articles", wantStatus: http.StatusBadRequest},
		{name: "unknown key", method: "GET", path: "/v1/articles", authHeader: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "known key", method: "GET", path: "/v1/articles", authHeader: "Bearer secret", wantStatus: http.StatusOK},
		{name: "healthz open", method: "GET", path: "/v1/healthz", wantStatus: http.StatusOK},
		{name: "docs open", method: "GET", path: "/docs/openapi.yaml", wantStatus: http.StatusOK},
		{name: "preflight open", method: "OPTIONS", path: "/v1/articles", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestNilProviderDisablesAuth(t *testing.T) {
	handler := NewRouteAuthMiddleware(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/articles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCallerPropagation(t *testing.T) {
	provider := NewKeyAuthProvider(map[string]string{"secret": "ops"})

	var caller Caller
	var callerErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, callerErr = CallerFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/collect", nil)
	req.Header.Set("Authorization", "Bearer secret")
	provider.Authenticate(next).ServeHTTP(httptest.NewRecorder(), req)

	if callerErr != nil {
		t.Fatalf("CallerFromContext: %v", callerErr)
	}
	if caller.Owner != "ops" {
		t.Fatalf("owner = %q, want %q", caller.Owner, "ops")
	}
}
