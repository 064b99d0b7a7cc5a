package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/codec"
	"github.com/rhuss/umfrage/pkg/storage"
	"github.com/rhuss/umfrage/pkg/storage/files"
)

// HTTPStatusFromError maps an APIError type to its HTTP status code.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case api.ErrorTypeForbidden:
		return http.StatusForbidden
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeConflict:
		return http.StatusConflict
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToAPIError converts an error returned by the service layer into the
// APIError reported to clients.
func ToAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var violation *codec.SchemaViolation
	if errors.As(err, &violation) {
		return api.NewSchemaError(string(violation.Kind), violation.Key, violation.Error())
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(err.Error())
	case errors.Is(err, storage.ErrConflict):
		return api.NewConflictError(err.Error())
	case errors.Is(err, storage.ErrInvalidSurveyID):
		return api.NewInvalidRequestError("survey_id", err.Error())
	case errors.Is(err, files.ErrInvalidName):
		return api.NewInvalidRequestError("filename", err.Error())
	}
	return api.NewServerError("internal server error")
}

// WriteErrorResponse writes apiErr as a JSON ErrorResponse with status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status derived from its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError converts err and writes it. Server errors are logged with
// the request ID; their details are not sent to the client.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr := ToAPIError(err)
	if apiErr.Type == api.ErrorTypeServerError {
		slog.ErrorContext(ctx, "request failed",
			"request_id", RequestIDFromContext(ctx),
			"error", err,
		)
	}
	WriteAPIError(w, apiErr)
}
