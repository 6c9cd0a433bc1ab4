package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := CheckPassword(hash, "hunter22"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIssueAndVerifyToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.IssueToken("acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "acct-1" {
		t.Errorf("expected acct-1, got %s", id)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	other := NewManager("different-secret", time.Hour)

	token, _ := m.IssueToken("acct-1")
	if _, err := other.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	m := &Manager{secret: []byte("test-secret"), ttl: -time.Minute}

	token, err := m.IssueToken("acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyToken_Garbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	if _, err := m.VerifyToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	token, _ := m.IssueToken("acct-1")

	var gotID string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = AccountID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotID != "acct-1" {
		t.Errorf("expected acct-1 in context, got %q", gotID)
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"no bearer prefix", "token-without-prefix"},
		{"bad token", "Bearer garbage"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", tc.name, w.Code)
		}
	}
}
