package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func protected(t *testing.T, m *JWTMiddleware) http.Handler {
	t.Helper()
	return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := ClaimsFromContext(r.Context())
		if c == nil {
			t.Error("expected claims in context")
			return
		}
		w.Write([]byte(c.Subject))
	}))
}

func TestAuthenticate(t *testing.T) {
	m := NewJWTMiddleware("secret")
	valid, err := m.Sign("producer-1", "editor", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, err := m.Sign("producer-1", "editor", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	foreign, err := NewJWTMiddleware("other").Sign("producer-1", "", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected(t, m).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK && rec.Body.String() != "producer-1" {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}
