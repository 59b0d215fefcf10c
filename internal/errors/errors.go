// Package errors provides structured error handling with context propagation
// and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeAuthentication indicates a missing, invalid, or expired token
	// (HTTP 401). At the websocket handshake it is fatal and never retried.
	TypeAuthentication ErrorType = "authentication"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeTransport indicates a socket-level failure; clients treat it as
	// transient and reconnect with backoff.
	TypeTransport ErrorType = "transport"
	// TypeHeartbeatTimeout indicates a silent peer evicted by the server.
	TypeHeartbeatTimeout ErrorType = "heartbeat_timeout"
	// TypeDelivery indicates a single-recipient send failure, isolated to
	// that recipient.
	TypeDelivery ErrorType = "delivery"
	// TypeRetryBudget indicates the client exhausted its reconnect attempts
	// and switched to the polling fallback.
	TypeRetryBudget ErrorType = "retry_budget"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeAuthentication:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeTransport, TypeDelivery, TypeHeartbeatTimeout:
		return http.StatusBadGateway
	case TypeRetryBudget:
		return http.StatusServiceUnavailable
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{Type: TypeValidation, Message: message, Context: make(map[string]any)}
}

// AuthenticationError creates a new authentication error (HTTP 401).
func AuthenticationError(message string, cause error) *Error {
	return &Error{Type: TypeAuthentication, Message: message, Cause: cause, Context: make(map[string]any)}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{Type: TypeNotFound, Message: message, Context: make(map[string]any)}
}

// TransportError creates a new transport error.
func TransportError(message string, cause error) *Error {
	return &Error{Type: TypeTransport, Message: message, Cause: cause, Context: make(map[string]any)}
}

// HeartbeatTimeoutError creates the error recorded when a silent peer is evicted.
func HeartbeatTimeoutError(message string) *Error {
	return &Error{Type: TypeHeartbeatTimeout, Message: message, Context: make(map[string]any)}
}

// DeliveryError creates a single-recipient delivery error.
func DeliveryError(message string, cause error) *Error {
	return &Error{Type: TypeDelivery, Message: message, Cause: cause, Context: make(map[string]any)}
}

// RetryBudgetExhaustedError creates the terminal client-side reconnect error.
func RetryBudgetExhaustedError(attempts int) *Error {
	e := &Error{Type: TypeRetryBudget, Message: "reconnect attempts exhausted", Context: make(map[string]any)}
	return e.WithContext("attempts", attempts)
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause, Context: make(map[string]any)}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithField is an alias for WithContext (chainable).
func (e *Error) WithField(key string, value any) *Error {
	return e.WithContext(key, value)
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
