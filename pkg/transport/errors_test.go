package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/codec"
	"github.com/rhuss/umfrage/pkg/storage"
	"github.com/rhuss/umfrage/pkg/storage/files"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		errType    api.ErrorType
		wantStatus int
	}{
		{api.ErrorTypeInvalidRequest, http.StatusBadRequest},
		{api.ErrorTypeUnauthorized, http.StatusUnauthorized},
		{api.ErrorTypeForbidden, http.StatusForbidden},
		{api.ErrorTypeNotFound, http.StatusNotFound},
		{api.ErrorTypeConflict, http.StatusConflict},
		{api.ErrorTypeTooManyRequests, http.StatusTooManyRequests},
		{api.ErrorTypeServerError, http.StatusInternalServerError},
		{api.ErrorType("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			got := HTTPStatusFromError(&api.APIError{Type: tt.errType, Message: "test"})
			if got != tt.wantStatus {
				t.Errorf("HTTPStatusFromError(%q) = %d, want %d", tt.errType, got, tt.wantStatus)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	violation := &codec.SchemaViolation{Kind: codec.WrongValueType, Key: "Q2.value", Expected: "INT", Actual: "string"}

	tests := []struct {
		name      string
		err       error
		wantType  api.ErrorType
		wantCode  string
		wantParam string
	}{
		{"api error", api.NewInvalidRequestError("lang", "bad"), api.ErrorTypeInvalidRequest, "", "lang"},
		{"schema violation", fmt.Errorf("start: %w", violation), api.ErrorTypeInvalidRequest, "wrong_value_type", "Q2.value"},
		{"unknown field", &codec.SchemaViolation{Kind: codec.UnknownField, Key: "Q9.value"}, api.ErrorTypeInvalidRequest, "unknown_field", "Q9.value"},
		{"not found", fmt.Errorf("response 4: %w", storage.ErrNotFound), api.ErrorTypeNotFound, "", ""},
		{"conflict", storage.ErrConflict, api.ErrorTypeConflict, "", ""},
		{"invalid survey id", fmt.Errorf("%w: -1", storage.ErrInvalidSurveyID), api.ErrorTypeInvalidRequest, "", "survey_id"},
		{"invalid file name", fmt.Errorf("%w: \"..\"", files.ErrInvalidName), api.ErrorTypeInvalidRequest, "", "filename"},
		{"other", errors.New("disk on fire"), api.ErrorTypeServerError, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAPIError(tt.err)
			if got.Type != tt.wantType || got.Code != tt.wantCode || got.Param != tt.wantParam {
				t.Errorf("ToAPIError() = %+v, want type=%s code=%q param=%q", got, tt.wantType, tt.wantCode, tt.wantParam)
			}
		})
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, errors.New("pq: password authentication failed for user umfrage"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error.Message != "internal server error" {
		t.Errorf("message = %q, leaked internal error", resp.Error.Message)
	}
}

func TestWriteErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, api.NewInvalidRequestError("lang", "is required"), http.StatusBadRequest)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error.Param != "lang" || resp.Error.Message != "is required" {
		t.Errorf("error = %+v", resp.Error)
	}
}
