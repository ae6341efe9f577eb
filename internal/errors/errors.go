package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeInvalidInput       ErrorType = "invalid_input"
	ErrorTypeFetch              ErrorType = "fetch"
	ErrorTypeCorpusUnavailable  ErrorType = "corpus_unavailable"
	ErrorTypePersistence        ErrorType = "persistence"
	ErrorTypeConfirmationFailed ErrorType = "confirmation_failed"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeCancelled          ErrorType = "cancelled"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: status, Cause: cause}
}

// NewInvalidInputError is returned for empty or unreadable images and malformed requests.
func NewInvalidInputError(message string, cause error) *AppError {
	return newError(ErrorTypeInvalidInput, http.StatusBadRequest, message, cause)
}

// NewFetchError is returned when a specific image cannot be read from storage or the network.
func NewFetchError(message string, cause error) *AppError {
	return newError(ErrorTypeFetch, http.StatusBadGateway, message, cause)
}

// NewCorpusUnavailableError is returned when the comparison set cannot be enumerated.
func NewCorpusUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeCorpusUnavailable, http.StatusServiceUnavailable, message, cause)
}

// NewPersistenceError is returned when an audit or status write fails.
func NewPersistenceError(message string, cause error) *AppError {
	return newError(ErrorTypePersistence, http.StatusInternalServerError, message, cause)
}

// NewConfirmationFailedError is returned when the case status could not be set to found.
func NewConfirmationFailedError(message string, cause error) *AppError {
	return newError(ErrorTypeConfirmationFailed, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, cause error) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, message, cause)
}

// NewCancelledError is returned when a scan is cancelled or times out.
func NewCancelledError(message string, cause error) *AppError {
	return newError(ErrorTypeCancelled, http.StatusGatewayTimeout, message, cause)
}

// IsType checks if the error chain contains an AppError of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the type of the first AppError in the chain.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
