// Package errors provides custom error types for the conductor orchestration
// engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Orchestration-specific codes.
	ErrCodeAgentUnavailable     = "AGENT_UNAVAILABLE"
	ErrCodeAgentTimeout         = "AGENT_TIMEOUT"
	ErrCodeAgentCancelled       = "AGENT_CANCELLED"
	ErrCodeAgentInternal        = "AGENT_INTERNAL"
	ErrCodeWorkspaceUnavailable = "WORKSPACE_UNAVAILABLE"
	ErrCodeBlockFailed          = "BLOCK_FAILED"
	ErrCodeExecutionFailed      = "EXECUTION_FAILED"
	ErrCodeDesignCyclic         = "DESIGN_CYCLIC"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeRateLimited          = "RATE_LIMITED"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Unauthorized creates a new unauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a new forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:       ErrCodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Conflict creates a new conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a new validation error for a specific field.
func ValidationError(field string, message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidationError,
		Message:    fmt.Sprintf("validation failed for field '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// ServiceUnavailable creates a new service unavailable error.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("service '%s' is currently unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// AgentUnavailable creates an error for a model/backend that cannot be
// reached or is not configured.
func AgentUnavailable(agent string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeAgentUnavailable,
		Message:    fmt.Sprintf("agent '%s' is unavailable", agent),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// AgentTimeout creates an error for an agent call that exceeded its
// configured timeout.
func AgentTimeout(agent string) *AppError {
	return &AppError{
		Code:       ErrCodeAgentTimeout,
		Message:    fmt.Sprintf("agent '%s' timed out", agent),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// AgentCancelled creates an error for an agent call cut short by
// cancellation.
func AgentCancelled(agent string) *AppError {
	return &AppError{
		Code:       ErrCodeAgentCancelled,
		Message:    fmt.Sprintf("agent '%s' was cancelled", agent),
		HTTPStatus: http.StatusOK,
	}
}

// AgentInternal wraps an unexpected backend failure.
func AgentInternal(agent string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeAgentInternal,
		Message:    fmt.Sprintf("agent '%s' failed", agent),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// WorkspaceUnavailable creates an error for a workspace that could not be
// acquired (clone failure, sandbox start failure, etc).
func WorkspaceUnavailable(reason string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeWorkspaceUnavailable,
		Message:    fmt.Sprintf("workspace unavailable: %s", reason),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// BlockFailed creates an error for a design block whose executor returned a
// terminal failure.
func BlockFailed(blockID string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeBlockFailed,
		Message:    fmt.Sprintf("block '%s' failed", blockID),
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// ExecutionFailed creates an error for an execution that terminated with a
// failure outcome.
func ExecutionFailed(executionID string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeExecutionFailed,
		Message:    fmt.Sprintf("execution '%s' failed", executionID),
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// DesignCyclic creates an error for a design graph that contains a cycle.
func DesignCyclic(designID string) *AppError {
	return &AppError{
		Code:       ErrCodeDesignCyclic,
		Message:    fmt.Sprintf("design '%s' contains a cycle", designID),
		HTTPStatus: http.StatusBadRequest,
	}
}

// StoreUnavailable creates an error for an execution log store that
// rejected a read or write.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:       ErrCodeStoreUnavailable,
		Message:    "execution store is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// RateLimited creates an error for a caller that exceeded the configured
// per-second request budget.
func RateLimited(requestsPerSecond int) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimited,
		Message:    fmt.Sprintf("too many requests, limit is %d per second", requestsPerSecond),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	// Otherwise, wrap as an internal error
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsBadRequest checks if the error is a bad request error.
func IsBadRequest(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeBadRequest || appErr.Code == ErrCodeValidationError
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

