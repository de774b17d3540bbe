package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for Microsoft Graph responses.
var (
	// ErrUnauthorized indicates the access token is invalid or expired.
	ErrUnauthorized = errors.New("graph: unauthorized")

	// ErrForbidden indicates the app registration lacks a required permission.
	ErrForbidden = errors.New("graph: forbidden")

	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("graph: not found")

	// ErrThrottled indicates the request was throttled by Microsoft Graph.
	ErrThrottled = errors.New("graph: throttled")

	// ErrBadRequest indicates the request was malformed.
	ErrBadRequest = errors.New("graph: bad request")

	// ErrConflict indicates the object already exists.
	ErrConflict = errors.New("graph: conflict")

	// ErrServerError indicates a server-side failure from Microsoft Graph.
	ErrServerError = errors.New("graph: server error")
)

// odataError is the error envelope Graph returns on failed requests.
type odataError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// serviceExceptionCodes are OData error codes Graph documents as service
// level failures worth retrying even when the status code alone would not
// qualify.
var serviceExceptionCodes = map[string]bool{
	"serviceNotAvailable": true,
	"UnknownError":        true,
}

// APIError is a failed Graph (or Exchange admin) call. It carries the
// structured metadata the retry executor classifies on: status code, OData
// error code, and the raw Retry-After header.
type APIError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Code is the OData error code, e.g. "Request_ResourceNotFound".
	Code string
	// Message is the OData error message.
	Message string
	// RetryAfterHeader is the raw Retry-After value, or "".
	RetryAfterHeader string
	// ServiceException tags transport-level failures (connection reset,
	// timeout) that produced no response but are worth retrying.
	ServiceException bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("graph: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	return WrapStatus(e.StatusCode)
}

// HTTPStatus implements retry.RemoteError.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Transient implements retry.RemoteError. True for transport-level failures
// and documented service-level exception codes regardless of status.
func (e *APIError) Transient() bool {
	return e.ServiceException || serviceExceptionCodes[e.Code]
}

// RetryAfter implements retry.RemoteError.
func (e *APIError) RetryAfter() string { return e.RetryAfterHeader }

// WrapStatus converts an HTTP status code to the matching sentinel error,
// or nil for non-error statuses.
func WrapStatus(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusConflict:
		return ErrConflict
	default:
		if statusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// IsRetryable checks if the status code indicates a transient condition.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
