package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/hitoshi/schemebot/internal/conversation"
	"github.com/hitoshi/schemebot/internal/middleware"
	"github.com/hitoshi/schemebot/internal/model"
)

// maxSessionIDLen はクライアント指定のセッションIDの最大長。
const maxSessionIDLen = 128

// ChatServiceInterface は会話ハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	// Submit は1件のメッセージを処理して応答を返す。sessionIDが空の場合は新規発行する。
	Submit(ctx context.Context, sessionID, text string) (*conversation.TurnResult, error)
}

// chatRequest は会話ターンのリクエストボディ。WebSocketの受信フレームも同じ形式。
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatResponse は会話ターンのAPIレスポンス。
type chatResponse struct {
	SessionID string                  `json:"session_id"`
	Step      string                  `json:"step"`
	Reply     model.ConversationReply `json:"reply"`
}

// wsErrorFrame はWebSocketで返すエラーフレーム。
type wsErrorFrame struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ChatHandler は会話APIのHTTPハンドラー。JSONとWebSocketの両方を提供する。
type ChatHandler struct {
	service        ChatServiceInterface
	originPatterns []string
}

// NewChatHandler はChatHandlerを生成する。
// allowedOriginはWebSocket接続を許可するオリジン（CORS設定と同じ値）。
func NewChatHandler(service ChatServiceInterface, allowedOrigin string) *ChatHandler {
	return &ChatHandler{
		service:        service,
		originPatterns: originPatterns(allowedOrigin),
	}
}

// Chat は1ターン分のメッセージを処理する。
// POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if apiErr := validateChatRequest(req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	middleware.AnnotateSession(r.Context(), strings.TrimSpace(req.SessionID))

	result, err := h.service.Submit(r.Context(), strings.TrimSpace(req.SessionID), req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatResponse(result))
}

// ChatWS はWebSocketで会話を処理する。1フレーム受信ごとに1フレーム応答する。
// セッションIDはクエリ、フレーム、直前の応答の順に決まる。
// GET /api/chat/ws?session_id=
func (h *ChatHandler) ChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if len(sessionID) > maxSessionIDLen {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("failed to accept websocket", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxJSONBodyBytes)

	ctx := r.Context()
	for {
		var req chatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}

		if req.SessionID == "" {
			req.SessionID = sessionID
		}
		if apiErr := validateChatRequest(req); apiErr != nil {
			if err := wsjson.Write(ctx, conn, wsErrorFrame{Error: apiErr.Code, Message: apiErr.Message}); err != nil {
				return
			}
			continue
		}
		middleware.AnnotateSession(ctx, strings.TrimSpace(req.SessionID))

		result, err := h.service.Submit(ctx, strings.TrimSpace(req.SessionID), req.Message)
		if err != nil {
			slog.Warn("websocket turn failed", slog.String("error", err.Error()))
			conn.Close(websocket.StatusTryAgainLater, "turn failed")
			return
		}
		sessionID = result.SessionID

		if err := wsjson.Write(ctx, conn, toChatResponse(result)); err != nil {
			return
		}
	}
}

func validateChatRequest(req chatRequest) *model.APIError {
	if strings.TrimSpace(req.Message) == "" {
		return model.NewEmptyMessageError()
	}
	if len(req.SessionID) > maxSessionIDLen || !utf8.ValidString(req.SessionID) {
		return model.NewInvalidRequestError()
	}
	return nil
}

func toChatResponse(result *conversation.TurnResult) chatResponse {
	return chatResponse{
		SessionID: result.SessionID,
		Step:      string(result.Step),
		Reply:     result.Reply,
	}
}

// originPatterns は許可オリジンからWebSocketのオリジンパターンを作る。
// 同一ホストからの接続は常に許可される。
func originPatterns(allowedOrigin string) []string {
	if allowedOrigin == "" {
		return nil
	}
	if allowedOrigin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(allowedOrigin)
	if err != nil || u.Host == "" {
		return []string{allowedOrigin}
	}
	return []string{u.Host}
}
