// Package apperr defines the structured application error used across the
// pipeline and its HTTP surface.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Pipeline taxonomy
	CodeClassificationUnavailable = "CLASSIFICATION_UNAVAILABLE"
	CodePersistenceError          = "PERSISTENCE_ERROR"
	CodeNotificationError         = "NOTIFICATION_ERROR"
	CodeDuplicateReply            = "DUPLICATE_REPLY"
	CodeInvalidHumanAction        = "INVALID_HUMAN_ACTION"

	// Transport
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeMissingField     = "MISSING_FIELD"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeExternalError    = "EXTERNAL_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeTimeout          = "TIMEOUT"
)

// AppError is a structured application error.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code.
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// New creates an AppError.
func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// Wrap creates an AppError wrapping a cause.
func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// Pipeline errors

// ClassificationUnavailable marks a service error, timeout or malformed
// output from the external classifier. It is always recovered locally via
// the fallback classification and never surfaced as a request failure.
func ClassificationUnavailable(err error) *AppError {
	return &AppError{
		Code:    CodeClassificationUnavailable,
		Message: "classification service unavailable",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// PersistenceError marks a state/pattern/draft store write failure.
func PersistenceError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodePersistenceError,
		Message: fmt.Sprintf("persistence error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// NotificationError marks a failed chat-ops post.
func NotificationError(err error) *AppError {
	return &AppError{
		Code:    CodeNotificationError,
		Message: "notification channel error",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// DuplicateReply marks an idempotency hit. It short-circuits processing
// and is not an error from the caller's point of view.
func DuplicateReply(replyID string) *AppError {
	return &AppError{
		Code:    CodeDuplicateReply,
		Message: fmt.Sprintf("reply %s already processed", replyID),
		Status:  http.StatusOK,
		Details: map[string]any{"reply_id": replyID},
	}
}

// InvalidHumanAction marks an action against an unknown or already-terminal
// draft. No partial state mutation may precede it.
func InvalidHumanAction(reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidHumanAction,
		Message: reason,
		Status:  http.StatusConflict,
	}
}

// Transport errors

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

func BadRequest(message string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, Status: http.StatusBadRequest}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func NotFound(resource string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource), Status: http.StatusNotFound}
}

func Conflict(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message, Status: http.StatusConflict}
}

func ExternalError(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalError,
		Message: fmt.Sprintf("external service error: %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{Code: CodeInternalError, Message: message, Status: http.StatusInternalServerError}
}

func InternalWithError(err error) *AppError {
	return &AppError{Code: CodeInternalError, Message: "internal server error", Status: http.StatusInternalServerError, Err: err}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helpers

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
