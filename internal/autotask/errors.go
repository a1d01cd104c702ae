package autotask

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorType is the closed set of failure kinds the client produces.
// Every failure path maps to exactly one of these.
type ErrorType string

const (
	ErrAuthentication ErrorType = "authentication"
	ErrNotFound       ErrorType = "not_found"
	ErrValidation     ErrorType = "validation"
	ErrNetwork        ErrorType = "network"
	ErrTimeout        ErrorType = "timeout"
	ErrRateLimit      ErrorType = "rate_limit"
	ErrServerError    ErrorType = "server_error"
	ErrUnknown        ErrorType = "unknown"
)

// maxBodyDetail bounds how much response body an error carries.
const maxBodyDetail = 500

// APIError is the structured failure value returned across the client
// boundary. It marshals to the shape tool callers branch on: they look
// for an "error_type" key rather than unwinding a panic or exception.
type APIError struct {
	Type       ErrorType      `json:"error_type"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Envelope returns the error as a plain map, the shape tools embed in
// composite results.
func (e *APIError) Envelope() map[string]any {
	m := map[string]any{
		"error_type": string(e.Type),
		"message":    e.Message,
	}
	if e.StatusCode != 0 {
		m["status_code"] = e.StatusCode
	}
	if e.Details != nil {
		m["details"] = e.Details
	}
	return m
}

func validationError(missing []string) *APIError {
	return &APIError{
		Type:    ErrValidation,
		Message: fmt.Sprintf("Missing required configuration: %s", strings.Join(missing, ", ")),
		Details: map[string]any{"missing_fields": missing},
	}
}

// classifyStatus maps a non-2xx HTTP response to an APIError. The
// mapping is total: anything not explicitly recognized is UNKNOWN with
// a truncated body for diagnosis.
func classifyStatus(status int, endpoint string, body []byte) *APIError {
	switch {
	case status == 401:
		return &APIError{
			Type:       ErrAuthentication,
			Message:    "Authentication failed. Check your API credentials.",
			StatusCode: 401,
		}
	case status == 404:
		return &APIError{
			Type:       ErrNotFound,
			Message:    fmt.Sprintf("Resource not found: %s", endpoint),
			StatusCode: 404,
		}
	case status == 429:
		return &APIError{
			Type:       ErrRateLimit,
			Message:    "Rate limit exceeded. Please retry later.",
			StatusCode: 429,
		}
	case status >= 500:
		return &APIError{
			Type:       ErrServerError,
			Message:    fmt.Sprintf("Autotask server error: %d", status),
			StatusCode: status,
			Details:    map[string]any{"body": truncateBody(body)},
		}
	default:
		return &APIError{
			Type:       ErrUnknown,
			Message:    fmt.Sprintf("HTTP error: %d from %s", status, endpoint),
			StatusCode: status,
			Details:    map[string]any{"body": truncateBody(body)},
		}
	}
}

// classifyTransport maps a failure that happened before any HTTP
// response arrived: a deadline expiry becomes TIMEOUT, everything at
// the connection level becomes NETWORK.
func classifyTransport(err error, timeout time.Duration) *APIError {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	if timedOut {
		return &APIError{
			Type:    ErrTimeout,
			Message: fmt.Sprintf("Request timeout after %gs", timeout.Seconds()),
			Details: map[string]any{"timeout": timeout.Seconds()},
		}
	}

	return &APIError{
		Type:    ErrNetwork,
		Message: fmt.Sprintf("Network error: %v", err),
		Details: map[string]any{"category": networkCategory(err)},
	}
}

func networkCategory(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return fmt.Sprintf("%T", err)
}

func truncateBody(body []byte) string {
	if len(body) > maxBodyDetail {
		return string(body[:maxBodyDetail])
	}
	return string(body)
}
