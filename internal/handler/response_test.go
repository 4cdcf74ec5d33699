package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/schemebot/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewInvalidRequestError(), http.StatusBadRequest},
		{model.NewMissingFieldsError([]string{"name"}), http.StatusBadRequest},
		{model.NewInvalidURLError("bad scheme"), http.StatusBadRequest},
		{model.NewInvalidFilterError("state"), http.StatusBadRequest},
		{model.NewInvalidStatusError("done"), http.StatusBadRequest},
		{model.NewNoDocumentsError(), http.StatusBadRequest},
		{model.NewInvalidProfileError("age"), http.StatusBadRequest},
		{model.NewEmptyMessageError(), http.StatusBadRequest},
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{model.NewForbiddenError(), http.StatusForbidden},
		{model.NewSSRFBlockedError(), http.StatusForbidden},
		{model.NewUserNotFoundError(), http.StatusNotFound},
		{model.NewSchemeNotFoundError("x"), http.StatusNotFound},
		{model.NewApplicationNotFoundError("x"), http.StatusNotFound},
		{model.NewCatalogEntryNotFoundError("x"), http.StatusNotFound},
		{model.NewEmailTakenError(), http.StatusConflict},
		{model.NewUploadTooLargeError(1), http.StatusRequestEntityTooLarge},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "wrapped api error",
			err:      fmt.Errorf("service: %w", model.NewSchemeNotFoundError("abc")),
			wantCode: http.StatusNotFound,
			wantBody: model.ErrCodeSchemeNotFound,
		},
		{
			name:     "context canceled",
			err:      fmt.Errorf("query: %w", context.Canceled),
			wantCode: http.StatusServiceUnavailable,
			wantBody: "UNAVAILABLE",
		},
		{
			name:     "unexpected error hides detail",
			err:      errors.New("pq: connection refused"),
			wantCode: http.StatusInternalServerError,
			wantBody: "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handleServiceError(w, tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("body = %s, want to contain %q", body, tt.wantBody)
			}
			if strings.Contains(body, "connection refused") {
				t.Error("internal error detail leaked to response")
			}
		})
	}
}

func TestDecodeJSON_RejectsMalformedAndOversizedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"message":`},
		{name: "oversized", body: `{"message":"` + strings.Repeat("a", maxJSONBodyBytes) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var v chatRequest
			if decodeJSON(w, req, &v) {
				t.Fatal("decodeJSON() = true, want false")
			}
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if code := parseAPIErrorResponse(t, w)["code"]; code != model.ErrCodeInvalidRequest {
				t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidRequest)
			}
		})
	}
}
