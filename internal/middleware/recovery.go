package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
)

type requestTraceKey struct{}

// requestTrace はpanicログに含めるリクエスト属性。
// 下流のハンドラーが判明した時点で書き込む。
type requestTrace struct {
	mu        sync.Mutex
	sessionID string
	userID    string
}

// AnnotateSession はpanicログに出力する会話セッションIDを記録する。
// NewRecoveryMiddlewareの配下でなければ何もしない。
func AnnotateSession(ctx context.Context, sessionID string) {
	if t, ok := ctx.Value(requestTraceKey{}).(*requestTrace); ok {
		t.mu.Lock()
		t.sessionID = sessionID
		t.mu.Unlock()
	}
}

func annotateUser(ctx context.Context, userID string) {
	if t, ok := ctx.Value(requestTraceKey{}).(*requestTrace); ok {
		t.mu.Lock()
		t.userID = userID
		t.mu.Unlock()
	}
}

func (t *requestTrace) attrs() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var attrs []any
	if t.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", t.sessionID))
	}
	if t.userID != "" {
		attrs = append(attrs, slog.String("user_id", t.userID))
	}
	return attrs
}

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 統一形式の500レスポンスを返すミドルウェアを生成する。
// 会話セッションIDと認証済みユーザーIDが判明していればログに含める。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trace := &requestTrace{}
			r = r.WithContext(context.WithValue(r.Context(), requestTraceKey{}, trace))

			defer func() {
				if rec := recover(); rec != nil {
					attrs := append([]any{
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					}, trace.attrs()...)
					attrs = append(attrs, slog.String("stack", string(debug.Stack())))
					slog.Error("panic recovered", attrs...)
					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
