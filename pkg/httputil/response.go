package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/observability"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteErrorMessage writes a JSON error response
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeError(w, status, ErrorResponse{Error: code, Message: message})
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindGone:
		return http.StatusGone
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err with the status of its kind. Errors that are
// not application errors are logged and reported as a bare internal error.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindInternal {
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
		WriteInternalError(w)
		return
	}

	logger := observability.FromContext(r.Context()).WithField("code", appErr.Code)
	if appErr.Kind == apperrors.KindForbidden || appErr.Kind == apperrors.KindUnauthenticated {
		logger.Info(appErr.Message)
	} else {
		logger.Debug(appErr.Message)
	}

	writeError(w, StatusFor(appErr.Kind), ErrorResponse{
		Error:   appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// WriteValidationError writes a validation error response (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, apperrors.KindValidation.String(), message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, apperrors.KindNotFound.String(), message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, apperrors.KindUnauthenticated.String(), message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, apperrors.KindRateLimited.String(), message)
}

// WriteInternalError writes an internal server error response without
// leaking the underlying error
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, apperrors.KindInternal.String(), "Internal server error")
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
