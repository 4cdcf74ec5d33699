package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthTimeout はヘルスチェックでDBに問い合わせる際のタイムアウト。
const healthTimeout = 2 * time.Second

// Pinger はDB接続の疎通確認インターフェース。*sql.DB が満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はウェルカムとヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler はHealthHandlerを生成する。dbがnilの場合はDBを確認しない。
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

type welcomeResponse struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Routes  []string `json:"routes"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Welcome はAPIの概要を返す。
// GET /
func (h *HealthHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, welcomeResponse{
		Name:    "schemebot",
		Message: "Welcome to the government scheme eligibility assistant.",
		Routes: []string{
			"/api/chat",
			"/api/catalog",
			"/api/eligibility",
			"/api/auth",
			"/api/schemes",
			"/api/applications",
		},
	})
}

// Health はサービスとDBの状態を返す。DBに到達できない場合は503。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "skipped"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}
