// Package apperrors owns the JSON error envelope and the typed errors handlers return.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Machine-readable codes shared across handlers.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeConfigurationNeeded = "CONFIGURATION_REQUIRED"
)

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error                string         `json:"error"`
	Code                 string         `json:"code,omitempty"`
	RequiresOrganization *bool          `json:"requires_organization,omitempty"`
	Details              map[string]any `json:"details,omitempty"`
	RequestID            string         `json:"request_id,omitempty"`
}

// Error is a failure with an HTTP status attached. Handlers return it from
// service calls and WriteErr renders it.
type Error struct {
	Status  int
	Code    string
	Message string

	// RequiresOrganization is rendered only when true.
	RequiresOrganization bool
	Details              map[string]any

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with the given status, code and message.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

func Validation(message string) *Error {
	return New(http.StatusBadRequest, CodeValidationFailed, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict is a 409 domain-rule violation.
func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

// Unprocessable is a 422 domain-rule violation.
func Unprocessable(code, message string) *Error {
	return New(http.StatusUnprocessableEntity, code, message)
}

// Internal wraps an unexpected error. The wrapped error is logged, never rendered.
func Internal(message string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: err}
}

// WriteErr renders err. Anything that is not an *Error becomes a generic 500.
func WriteErr(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Internal("Internal server error", err)
	}

	if appErr.Status >= http.StatusInternalServerError {
		log.Error().
			Err(appErr.Err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg(appErr.Message)
	}

	resp := ErrorResponse{
		Error:     appErr.Message,
		Code:      appErr.Code,
		Details:   appErr.Details,
		RequestID: GetRequestID(r.Context()),
	}
	if appErr.RequiresOrganization {
		requires := true
		resp.RequiresOrganization = &requires
	}
	WriteJSON(w, appErr.Status, resp)
}

// WriteError writes an error envelope with an explicit status and code.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	WriteErr(w, r, New(statusCode, code, message))
}

// WriteJSON writes v as the response body.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response body")
	}
}

// WriteServiceUnavailable is a helper for 503 responses
func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// WriteInternalError is a helper for 500 responses
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, message)
}

// WriteBadRequest is a helper for 400 responses
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteUnauthorized is a helper for 401 responses
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteForbidden is a helper for 403 responses
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, CodeForbidden, message)
}

// WriteNotFound is a helper for 404 responses
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, message)
}

// WriteTooManyRequests is a helper for 429 responses
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited, message)
}
