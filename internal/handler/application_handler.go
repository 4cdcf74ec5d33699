package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schemebot/internal/application"
	"github.com/hitoshi/schemebot/internal/model"
	"github.com/hitoshi/schemebot/internal/repository"
)

// multipartMemoryBytes はマルチパートフォームをメモリに保持する上限。超過分は一時ファイルになる。
const multipartMemoryBytes = 1 << 20

// ApplicationServiceInterface は申請ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	Submit(ctx context.Context, userID string, in application.SubmitInput) (*model.Application, error)
	ListOwn(ctx context.Context, userID string) ([]repository.ApplicationWithScheme, error)
	ListAll(ctx context.Context) ([]repository.ApplicationWithScheme, error)
	UpdateStatus(ctx context.Context, id, status string) (*model.Application, error)
}

// ApplicationHandler はスキーム申請のHTTPハンドラー。
type ApplicationHandler struct {
	service ApplicationServiceInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

type applicationResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	SchemeID   string     `json:"scheme_id"`
	SchemeName string     `json:"scheme_name,omitempty"`
	UserName   string     `json:"user_name,omitempty"`
	UserEmail  string     `json:"user_email,omitempty"`
	Answers    string     `json:"answers"`
	Documents  []string   `json:"documents"`
	Status     string     `json:"status"`
	AppliedAt  time.Time  `json:"applied_at"`
	ReviewedAt *time.Time `json:"reviewed_at"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// Submit は書類付きの申請を受け付ける。
// POST /api/applications (multipart/form-data: schemeId, answers, files)
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, application.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewUploadTooLargeError(application.MaxUploadBytes))
			return
		}
		slog.Debug("failed to parse multipart form", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("failed to remove multipart temp files", slog.String("error", err.Error()))
		}
	}()

	app, err := h.service.Submit(r.Context(), userID, application.SubmitInput{
		SchemeID: r.FormValue("schemeId"),
		Answers:  r.FormValue("answers"),
		Files:    r.MultipartForm.File["files"],
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApplicationResponse(repository.ApplicationWithScheme{Application: *app}))
}

// ListOwn はログインユーザー自身の申請一覧を返す。
// GET /api/applications/user
func (h *ApplicationHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	apps, err := h.service.ListOwn(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// ListAll は全申請を返す。管理者専用。
// GET /api/applications/admin
func (h *ApplicationHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// UpdateStatus は申請の審査状態を更新する。管理者専用。
// PUT /api/applications/{id}/status
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	app, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(repository.ApplicationWithScheme{Application: *app}))
}

func toApplicationResponses(apps []repository.ApplicationWithScheme) []applicationResponse {
	resp := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		resp = append(resp, toApplicationResponse(a))
	}
	return resp
}

func toApplicationResponse(a repository.ApplicationWithScheme) applicationResponse {
	docs := a.Documents
	if docs == nil {
		docs = []string{}
	}
	return applicationResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		SchemeID:   a.SchemeID,
		SchemeName: a.SchemeName,
		UserName:   a.UserName,
		UserEmail:  a.UserEmail,
		Answers:    a.Answers,
		Documents:  docs,
		Status:     string(a.Status),
		AppliedAt:  a.AppliedAt,
		ReviewedAt: a.ReviewedAt,
	}
}
