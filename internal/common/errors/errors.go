// Package errors provides structured error handling for EntraGuard
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode represents an application error code
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrBadRequest ErrorCode = "BAD_REQUEST"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrTimeout    ErrorCode = "TIMEOUT"

	// Analysis errors. ErrNoSignIns and ErrAccountNotFound are the only
	// hard stops the scoring core reports upward: total absence of the
	// dataset is distinct from an analysis that found zero risk.
	ErrAccountNotFound  ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrNoSignIns        ErrorCode = "NO_SIGN_IN_DATA"
	ErrUnknownIndicator ErrorCode = "UNKNOWN_INDICATOR"

	// External service errors
	ErrGraphError        ErrorCode = "GRAPH_ERROR"
	ErrRedisError        ErrorCode = "REDIS_ERROR"
	ErrLookupUnavailable ErrorCode = "LOOKUP_UNAVAILABLE"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Err        error                  `json:"-"` // Original error for logging
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the original error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusFor(code),
	}
}

// Wrap creates a new AppError wrapping an underlying error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusFor(code),
		Err:        err,
	}
}

// WithDetails attaches detail text to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// IsCode reports whether err is an AppError with the given code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func statusFor(code ErrorCode) int {
	switch code {
	case ErrNotFound, ErrAccountNotFound, ErrNoSignIns:
		return http.StatusNotFound
	case ErrBadRequest, ErrValidation, ErrUnknownIndicator:
		return http.StatusBadRequest
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrGraphError, ErrLookupUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes an AppError as a JSON response. Non-AppError values are
// reported as internal errors without leaking detail.
func Respond(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode, gin.H{"error": appErr})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": New(ErrInternal, "internal error"),
	})
}
