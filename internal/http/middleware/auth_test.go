package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ae-platform/account-management/pkg/auth"
)

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	return auth.NewTokenService(auth.TokenConfig{
		Secret: []byte("test-secret-test-secret-test-secret!"),
		Issuer: "account-management-test",
	})
}

func TestAuth(t *testing.T) {
	tokens := newTestTokens(t)
	validToken, err := tokens.IssueAccessToken("jdoe", []string{"ROLE_USER"})
	if err != nil {
		t.Fatal(err)
	}

	var seenLogin string
	handler := Auth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenLogin, _ = GetLogin(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantLogin  string
	}{
		{"valid bearer token", "Bearer " + validToken, http.StatusOK, "jdoe"},
		{"lowercase scheme", "bearer " + validToken, http.StatusOK, "jdoe"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + validToken, http.StatusUnauthorized, ""},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized, ""},
		{"scheme only", "Bearer", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenLogin = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if seenLogin != tt.wantLogin {
				t.Errorf("login = %q, want %q", seenLogin, tt.wantLogin)
			}
		})
	}
}

func TestAuthRejectsTokenFromOtherSecret(t *testing.T) {
	tokens := newTestTokens(t)
	other := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte("another-secret-another-secret-other!"),
		Issuer: "account-management-test",
	})
	foreign, err := other.IssueAccessToken("jdoe", nil)
	if err != nil {
		t.Fatal(err)
	}

	handler := Auth(tokens)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+foreign)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestOptionalAuth(t *testing.T) {
	tokens := newTestTokens(t)
	validToken, err := tokens.IssueAccessToken("jdoe", nil)
	if err != nil {
		t.Fatal(err)
	}

	var seenLogin string
	var seenOK bool
	handler := OptionalAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenLogin, seenOK = GetLogin(r.Context())
	}))

	t.Run("valid token sets login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+validToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK || !seenOK || seenLogin != "jdoe" {
			t.Errorf("status = %d, login = %q ok = %v", w.Code, seenLogin, seenOK)
		}
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK || seenOK {
			t.Errorf("status = %d, ok = %v, want anonymous pass-through", w.Code, seenOK)
		}
	})

	t.Run("invalid token passes through anonymously", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK || seenOK {
			t.Errorf("status = %d, ok = %v, want anonymous pass-through", w.Code, seenOK)
		}
	})
}

func TestSecurityContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), LoginKey, "jdoe")
	sc := NewSecurityContext(ctx)
	if login, ok := sc.CurrentLogin(); !ok || login != "jdoe" {
		t.Errorf("CurrentLogin() = %q, %v", login, ok)
	}

	sc = NewSecurityContext(context.Background())
	if _, ok := sc.CurrentLogin(); ok {
		t.Error("CurrentLogin() on empty context reports a principal")
	}
}
