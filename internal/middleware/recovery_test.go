package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/schemebot/internal/auth"
	"github.com/hitoshi/schemebot/internal/model"
)

func TestRecoveryMiddleware_ReturnsJSON500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if code := decodeErrorCode(t, w); code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", code)
	}
}

// captureDefaultLogger はテスト中のデフォルトロガーをJSONバッファに差し替える。
func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRecoveryMiddleware_LogsSessionID(t *testing.T) {
	buf := captureDefaultLogger(t)

	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AnnotateSession(r.Context(), "sess-42")
		panic("engine exploded")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "panic recovered" {
		t.Errorf("msg = %v, want panic recovered", entry["msg"])
	}
	if entry["session_id"] != "sess-42" {
		t.Errorf("session_id = %v, want sess-42", entry["session_id"])
	}
	if entry["path"] != "/api/chat" {
		t.Errorf("path = %v, want /api/chat", entry["path"])
	}
	if _, ok := entry["user_id"]; ok {
		t.Errorf("user_id should be absent for anonymous requests: %v", entry)
	}
}

func TestRecoveryMiddleware_LogsAuthenticatedUser(t *testing.T) {
	buf := captureDefaultLogger(t)

	authMW := NewAuthMiddleware(verifierFor(map[string]*auth.Claims{
		"good-token": claimsFor("user-7", model.RoleUser),
	}))
	handler := NewRecoveryMiddleware()(authMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if entry["user_id"] != "user-7" {
		t.Errorf("user_id = %v, want user-7", entry["user_id"])
	}
	if _, ok := entry["session_id"]; ok {
		t.Errorf("session_id should be absent: %v", entry)
	}
}

func TestAnnotateSession_WithoutRecovery_NoOp(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	AnnotateSession(req.Context(), "sess-1")
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeadersMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control on / = %q, want unset", got)
	}
}

func TestSecurityHeadersMiddleware_NoStoreForAPI(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeadersMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}
