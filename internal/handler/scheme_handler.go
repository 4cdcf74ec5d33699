package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schemebot/internal/model"
	"github.com/hitoshi/schemebot/internal/scheme"
)

// SchemeServiceInterface はスキーム管理ハンドラーが必要とするサービスインターフェース。
type SchemeServiceInterface interface {
	List(ctx context.Context) ([]*model.Scheme, error)
	Get(ctx context.Context, id string) (*model.Scheme, error)
	Create(ctx context.Context, in scheme.Input) (*model.Scheme, error)
	Update(ctx context.Context, id string, in scheme.Input) (*model.Scheme, error)
	Delete(ctx context.Context, id string) error
}

// SchemeHandler はポータルのスキーム管理HTTPハンドラー。
// 書き込み系はルーター側で管理者に限定する。
type SchemeHandler struct {
	service SchemeServiceInterface
}

// NewSchemeHandler はSchemeHandlerを生成する。
func NewSchemeHandler(service SchemeServiceInterface) *SchemeHandler {
	return &SchemeHandler{service: service}
}

type schemeRequest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Eligibility       string   `json:"eligibility"`
	Benefits          string   `json:"benefits"`
	DocumentsRequired []string `json:"documents_required"`
	Link              string   `json:"link"`
}

type schemeResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Eligibility       string    `json:"eligibility"`
	Benefits          string    `json:"benefits"`
	DocumentsRequired []string  `json:"documents_required"`
	Link              string    `json:"link"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ListSchemes は登録済みスキームの一覧を返す。
// GET /api/schemes
func (h *SchemeHandler) ListSchemes(w http.ResponseWriter, r *http.Request) {
	schemes, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]schemeResponse, 0, len(schemes))
	for _, s := range schemes {
		resp = append(resp, toSchemeResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetScheme はスキームの詳細を返す。
// GET /api/schemes/{id}
func (h *SchemeHandler) GetScheme(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemeResponse(s))
}

// CreateScheme はスキームを登録する。
// POST /api/schemes
func (h *SchemeHandler) CreateScheme(w http.ResponseWriter, r *http.Request) {
	var req schemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.Create(r.Context(), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSchemeResponse(s))
}

// UpdateScheme はスキームを更新する。
// PUT /api/schemes/{id}
func (h *SchemeHandler) UpdateScheme(w http.ResponseWriter, r *http.Request) {
	var req schemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemeResponse(s))
}

// DeleteScheme はスキームを削除する。
// DELETE /api/schemes/{id}
func (h *SchemeHandler) DeleteScheme(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req schemeRequest) toInput() scheme.Input {
	return scheme.Input{
		Name:              req.Name,
		Description:       req.Description,
		Eligibility:       req.Eligibility,
		Benefits:          req.Benefits,
		DocumentsRequired: req.DocumentsRequired,
		Link:              req.Link,
	}
}

func toSchemeResponse(s *model.Scheme) schemeResponse {
	docs := s.DocumentsRequired
	if docs == nil {
		docs = []string{}
	}
	return schemeResponse{
		ID:                s.ID,
		Name:              s.Name,
		Description:       s.Description,
		Eligibility:       s.Eligibility,
		Benefits:          s.Benefits,
		DocumentsRequired: docs,
		Link:              s.Link,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}
