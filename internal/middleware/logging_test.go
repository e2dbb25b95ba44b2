package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newJSONLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}")) // WriteHeaderなしは200
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "http_request" || entry["method"] != "GET" || entry["path"] != "/api/dashboard" {
		t.Errorf("entry = %v", entry)
	}
	if status, _ := entry["status"].(float64); status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v", entry["duration_ms"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be omitted for unauthenticated request")
	}
}

func TestLoggingMiddleware_UserIDFromInnerSession(t *testing.T) {
	var buf bytes.Buffer
	session := NewSessionMiddleware(validSessionRepo("sess", "user-123"))
	handler := NewLoggingMiddleware(newJSONLogger(&buf))(session(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		wantLevel  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusCreated, "INFO"},
		{http.StatusBadRequest, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			var buf bytes.Buffer
			handler := NewLoggingMiddleware(newJSONLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/logs", nil))

			entry := decodeLogEntry(t, &buf)
			if status := int(entry["status"].(float64)); status != tt.statusCode {
				t.Errorf("status = %d, want %d", status, tt.statusCode)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
		})
	}
}

func TestLoggingMiddleware_BytesAndRoute(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(newJSONLogger(&buf)))
	r.Post("/api/logs/{id}/cheer", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"cheer_count":1}`))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/logs/abc/cheer", nil))

	entry := decodeLogEntry(t, &buf)
	if entry["route"] != "/api/logs/{id}/cheer" {
		t.Errorf("route = %v", entry["route"])
	}
	if entry["path"] != "/api/logs/abc/cheer" {
		t.Errorf("path = %v", entry["path"])
	}
	if n, _ := entry["bytes"].(float64); n != float64(len(`{"cheer_count":1}`)) {
		t.Errorf("bytes = %v", entry["bytes"])
	}
}

func TestLoggingMiddleware_ProbeLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	handler := NewLoggingMiddleware(newJSONLogger(&buf))(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if buf.Len() != 0 {
		t.Errorf("successful probe should be below INFO, got %s", buf.String())
	}
}

func TestRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/health", 200, slog.LevelDebug},
		{"/health", 503, slog.LevelError},
		{"/metrics", 200, slog.LevelDebug},
		{"/api/feed", 200, slog.LevelInfo},
		{"/api/feed", 401, slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := requestLogLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("requestLogLevel(%q, %d) = %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}
