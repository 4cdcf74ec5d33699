package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schemebot/internal/catalog"
	"github.com/hitoshi/schemebot/internal/eligibility"
	"github.com/hitoshi/schemebot/internal/model"
)

// 受け付ける年齢の範囲。会話フローと同じ。
const (
	minProfileAge = 10
	maxProfileAge = 120
)

// CatalogReader はカタログハンドラーが必要とする読み取り専用インターフェース。
type CatalogReader interface {
	All() []model.SchemeRecord
	List(filter catalog.Filter, region string) []model.SchemeRecord
	Find(name string) (model.SchemeRecord, bool)
}

// CatalogHandler はスキームカタログと資格判定のHTTPハンドラー。
type CatalogHandler struct {
	catalog CatalogReader
	region  string
}

// NewCatalogHandler はCatalogHandlerを生成する。regionは地域フィルタの対象地域。
func NewCatalogHandler(c CatalogReader, region string) *CatalogHandler {
	return &CatalogHandler{catalog: c, region: region}
}

type catalogListResponse struct {
	Filter  string               `json:"filter"`
	Region  string               `json:"region,omitempty"`
	Count   int                  `json:"count"`
	Schemes []model.SchemeRecord `json:"schemes"`
}

// eligibilityRequest は資格判定のリクエストボディ。
type eligibilityRequest struct {
	Age        *int   `json:"age"`
	Income     *int64 `json:"income"`
	Occupation string `json:"occupation"`
	State      string `json:"state"`
	Category   string `json:"category"`
	Gender     string `json:"gender"`
}

type nearMissResponse struct {
	Name   string `json:"name"`
	Failed string `json:"failed"`
}

type eligibilityResponse struct {
	Count      int                  `json:"count"`
	Matches    []model.SchemeRecord `json:"matches"`
	NearMisses []nearMissResponse   `json:"near_misses"`
}

// ListSchemes はカタログのスキーム一覧を返す。
// GET /api/catalog?filter=all|central|region
func (h *CatalogHandler) ListSchemes(w http.ResponseWriter, r *http.Request) {
	filter, err := catalog.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	schemes := h.catalog.List(filter, h.region)
	if schemes == nil {
		schemes = []model.SchemeRecord{}
	}

	resp := catalogListResponse{
		Filter:  string(filter),
		Count:   len(schemes),
		Schemes: schemes,
	}
	if filter == catalog.FilterRegion {
		resp.Region = h.region
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetScheme は名前を指定してスキームを返す。大文字小文字は区別しない。
// GET /api/catalog/{name}
func (h *CatalogHandler) GetScheme(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	scheme, ok := h.catalog.Find(name)
	if !ok {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewCatalogEntryNotFoundError(name))
		return
	}
	writeJSON(w, http.StatusOK, scheme)
}

// CheckEligibility はセッションを使わずにプロフィールとカタログを照合する。
// POST /api/eligibility
func (h *CatalogHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Age != nil && (*req.Age < minProfileAge || *req.Age > maxProfileAge) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidProfileError("age must be between 10 and 120"))
		return
	}
	if req.Income != nil && *req.Income <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidProfileError("income must be greater than 0"))
		return
	}

	profile := model.UserProfile{
		Age:        req.Age,
		Income:     req.Income,
		Occupation: normalizeField(req.Occupation),
		State:      normalizeField(req.State),
		Category:   normalizeField(req.Category),
		Gender:     normalizeField(req.Gender),
	}

	all := h.catalog.All()
	matches := eligibility.Match(profile, all)
	if matches == nil {
		matches = []model.SchemeRecord{}
	}

	misses := []nearMissResponse{}
	if len(matches) == 0 {
		for _, m := range eligibility.NearMisses(profile, all) {
			misses = append(misses, nearMissResponse{Name: m.Scheme.Name, Failed: string(m.Failed)})
		}
	}

	writeJSON(w, http.StatusOK, eligibilityResponse{
		Count:      len(matches),
		Matches:    matches,
		NearMisses: misses,
	})
}

func normalizeField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
