package exporter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents a category of send error for metrics.
type ErrorType string

const (
	// ErrorTypeNetwork represents network-level errors (DNS, connection refused, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeServerError represents server-side errors (5xx status codes)
	ErrorTypeServerError ErrorType = "server_error"
	// ErrorTypeClientError represents client-side errors (4xx status codes)
	ErrorTypeClientError ErrorType = "client_error"
	// ErrorTypeAuth represents authentication/authorization errors (401, 403)
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeRateLimit represents rate limiting errors (429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeUnknown represents unclassified errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// ErrAllEndpointsDown is logged when a full pass over a ring found no
// eligible endpoint.
var ErrAllEndpointsDown = errors.New("exporter: all endpoints are unavailable")

// SendError is a failed delivery attempt to one endpoint.
type SendError struct {
	// Endpoint is the URL the attempt was sent to.
	Endpoint string
	// StatusCode is the HTTP status code (0 for transport errors).
	StatusCode int
	// Type is the classified error type.
	Type ErrorType
	// Body is a truncated response body from the collector.
	Body string
	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send to %s failed: %v", e.Endpoint, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("send to %s failed: status=%d type=%s body=%q", e.Endpoint, e.StatusCode, e.Type, e.Body)
	}
	return fmt.Sprintf("send to %s failed: status=%d type=%s", e.Endpoint, e.StatusCode, e.Type)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SendError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the same request may succeed later on the same
// endpoint. Delivery retries every failure regardless; this only feeds logs.
func (e *SendError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// errorType extracts the classified type of err.
func errorType(err error) ErrorType {
	var se *SendError
	if errors.As(err, &se) {
		return se.Type
	}
	return classifyError(err)
}

// classifyError categorizes a transport error into a low-cardinality type.
func classifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}
	if isNetworkError(err) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") {
		return ErrorTypeNetwork
	}
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return ErrorTypeTimeout
	}
	return ErrorTypeUnknown
}

// classifyHTTPStatusCode categorizes a non-200 HTTP status code.
func classifyHTTPStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorTypeClientError
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && !netErr.Timeout()
}
