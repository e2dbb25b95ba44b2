package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/habits/internal/middleware"
	"github.com/hitoshi/habits/internal/model"
)

var testAuthConfig = AuthHandlerConfig{
	CookieDomain:  "localhost",
	CookieSecure:  true,
	SessionMaxAge: 3600,
}

func testUser() *model.User {
	return &model.User{
		ID:        "user-1",
		Email:     "alice@example.com",
		Name:      "Alice",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- POST /auth/register ---

func TestAuthHandler_Register_Success(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(_ context.Context, email, password, name string) (*model.User, *model.Session, error) {
			if email != "alice@example.com" || password != "s3cret-pass" || name != "Alice" {
				t.Errorf("args = %q %q %q", email, password, name)
			}
			return testUser(), &model.Session{ID: "sess-1", UserID: "user-1"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	body := `{"email":"alice@example.com","password":"s3cret-pass","name":"Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "sess-1" || !cookie.HttpOnly || !cookie.Secure || cookie.MaxAge != 3600 {
		t.Errorf("cookie = %+v", cookie)
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", cookie.SameSite)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["id"] != "user-1" || got["email"] != "alice@example.com" || got["name"] != "Alice" {
		t.Errorf("body = %v", got)
	}
	if _, ok := got["password_hash"]; ok {
		t.Error("password hash must not be exposed")
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"不正なJSON", `{`, nil, http.StatusBadRequest},
		{"メール重複", `{"email":"a@example.com","password":"p","name":"A"}`, model.NewEmailTakenError(), http.StatusConflict},
		{"弱いパスワード", `{"email":"a@example.com","password":"p","name":"A"}`, model.NewWeakPasswordError(8), http.StatusBadRequest},
		{"内部エラー", `{"email":"a@example.com","password":"p","name":"A"}`, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(context.Context, string, string, string) (*model.User, *model.Session, error) {
					return nil, nil, tt.err
				},
			}
			h := NewAuthHandler(svc, testAuthConfig)

			req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Register(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if findCookie(w.Result(), middleware.SessionCookieName) != nil {
				t.Error("session cookie must not be set on error")
			}
		})
	}
}

// --- POST /auth/login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(_ context.Context, email, password string) (*model.User, *model.Session, error) {
			return testUser(), &model.Session{ID: "sess-2"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"x"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if c := findCookie(w.Result(), middleware.SessionCookieName); c == nil || c.Value != "sess-2" {
		t.Errorf("cookie = %+v", c)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(context.Context, string, string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@example.com","password":"bad"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q", code)
	}
}

// --- POST /auth/logout ---

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(_ context.Context, sessionID string) error {
			loggedOut = sessionID
			return errors.New("db down")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if loggedOut != "sess-1" {
		t.Errorf("logged out session = %q", loggedOut)
	}
	c := findCookie(w.Result(), middleware.SessionCookieName)
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("cookie should be cleared: %+v", c)
	}
}

// --- GET /auth/me ---

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(_ context.Context, sessionID string) (*model.User, error) {
			if sessionID != "sess-1" {
				return nil, errors.New("session not found")
			}
			return testUser(), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	tests := []struct {
		name     string
		cookie   string
		wantCode int
	}{
		{"有効なセッション", "sess-1", http.StatusOK},
		{"無効なセッション", "expired", http.StatusUnauthorized},
		{"Cookieなし", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.Me(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}
