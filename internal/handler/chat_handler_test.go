package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"github.com/hitoshi/schemebot/internal/conversation"
	"github.com/hitoshi/schemebot/internal/model"
)

// --- モック定義 ---

// mockChatService はChatServiceInterfaceのモック実装。
type mockChatService struct {
	mu       sync.Mutex
	calls    []chatRequest
	submitFn func(ctx context.Context, sessionID, text string) (*conversation.TurnResult, error)
}

func (m *mockChatService) Submit(ctx context.Context, sessionID, text string) (*conversation.TurnResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, chatRequest{SessionID: sessionID, Message: text})
	m.mu.Unlock()
	if m.submitFn != nil {
		return m.submitFn(ctx, sessionID, text)
	}
	if sessionID == "" {
		sessionID = "generated-session"
	}
	return &conversation.TurnResult{
		SessionID: sessionID,
		Step:      model.StepMenu,
		Reply:     model.NewReply("echo: " + text),
	}, nil
}

func (m *mockChatService) recorded() []chatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chatRequest(nil), m.calls...)
}

// --- POST /api/chat テスト ---

func TestChatHandler_Chat_Success(t *testing.T) {
	svc := &mockChatService{}
	h := NewChatHandler(svc, "http://localhost:3000")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Chat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	got := decodeBody[chatResponse](t, w)
	want := chatResponse{
		SessionID: "generated-session",
		Step:      "MENU",
		Reply:     model.NewReply("echo: hi"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestChatHandler_Chat_PassesTrimmedSessionID(t *testing.T) {
	svc := &mockChatService{}
	h := NewChatHandler(svc, "")

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		bytes.NewBufferString(`{"session_id":"  abc-123 ","message":"start over"}`))
	w := httptest.NewRecorder()

	h.Chat(w, req)

	calls := svc.recorded()
	if len(calls) != 1 {
		t.Fatalf("Submit calls = %d, want 1", len(calls))
	}
	if calls[0].SessionID != "abc-123" || calls[0].Message != "start over" {
		t.Errorf("Submit(%q, %q), want (abc-123, start over)", calls[0].SessionID, calls[0].Message)
	}
}

func TestChatHandler_Chat_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "empty message", body: `{"message":""}`, wantCode: model.ErrCodeEmptyMessage},
		{name: "whitespace message", body: `{"message":"   "}`, wantCode: model.ErrCodeEmptyMessage},
		{name: "invalid json", body: `not json`, wantCode: model.ErrCodeInvalidRequest},
		{
			name:     "session id too long",
			body:     `{"session_id":"` + strings.Repeat("s", maxSessionIDLen+1) + `","message":"hi"}`,
			wantCode: model.ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{}
			h := NewChatHandler(svc, "")

			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Chat(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if code := parseAPIErrorResponse(t, w)["code"]; code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if len(svc.recorded()) != 0 {
				t.Error("Submit should not be called for invalid input")
			}
		})
	}
}

func TestChatHandler_Chat_ServiceError_ReturnsInternalServerError(t *testing.T) {
	svc := &mockChatService{
		submitFn: func(ctx context.Context, sessionID, text string) (*conversation.TurnResult, error) {
			return nil, errors.New("lock wait failed")
		},
	}
	h := NewChatHandler(svc, "")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"hi"}`))
	w := httptest.NewRecorder()
	h.Chat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- GET /api/chat/ws テスト ---

func TestChatHandler_ChatWS_CarriesSessionAcrossFrames(t *testing.T) {
	svc := &mockChatService{}
	h := NewChatHandler(svc, "")
	srv := httptest.NewServer(http.HandlerFunc(h.ChatWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	for _, msg := range []string{"hi", "1"} {
		if err := wsjson.Write(ctx, conn, chatRequest{Message: msg}); err != nil {
			t.Fatalf("Write(%q) error = %v", msg, err)
		}
		var resp chatResponse
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if resp.SessionID != "generated-session" {
			t.Errorf("session_id = %q, want generated-session", resp.SessionID)
		}
		if resp.Reply.Text != "echo: "+msg {
			t.Errorf("reply = %q, want %q", resp.Reply.Text, "echo: "+msg)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")

	calls := svc.recorded()
	if len(calls) != 2 {
		t.Fatalf("Submit calls = %d, want 2", len(calls))
	}
	if calls[0].SessionID != "" {
		t.Errorf("first frame session = %q, want empty", calls[0].SessionID)
	}
	if calls[1].SessionID != "generated-session" {
		t.Errorf("second frame session = %q, want generated-session", calls[1].SessionID)
	}
}

func TestChatHandler_ChatWS_EmptyMessageReturnsErrorFrame(t *testing.T) {
	svc := &mockChatService{}
	h := NewChatHandler(svc, "")
	srv := httptest.NewServer(http.HandlerFunc(h.ChatWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?session_id=from-query", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, chatRequest{Message: "  "}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var frame wsErrorFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if frame.Error != model.ErrCodeEmptyMessage {
		t.Errorf("error = %q, want %q", frame.Error, model.ErrCodeEmptyMessage)
	}

	// エラーフレームの後も接続は継続する
	if err := wsjson.Write(ctx, conn, chatRequest{Message: "hello"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var resp chatResponse
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if resp.SessionID != "from-query" {
		t.Errorf("session_id = %q, want from-query", resp.SessionID)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestChatHandler_ChatWS_RejectsForeignOrigin(t *testing.T) {
	h := NewChatHandler(&mockChatService{}, "https://app.example.com")
	srv := httptest.NewServer(http.HandlerFunc(h.ChatWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", "https://evil.example.net")
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err == nil {
		t.Fatal("expected dial from foreign origin to fail")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "*", want: []string{"*"}},
		{in: "https://app.example.com", want: []string{"app.example.com"}},
		{in: "http://localhost:3000", want: []string{"localhost:3000"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, originPatterns(tt.in)); diff != "" {
			t.Errorf("originPatterns(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
