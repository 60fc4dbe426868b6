package retry

import (
	"errors"
	"strings"
)

// nonRetryable is implemented by errors that must never be retried, such as
// structured error responses from the platform API.
type nonRetryable interface {
	NonRetryable() bool
}

// IsNonRetryable reports whether err, or anything it wraps, is tagged as not retryable.
func IsNonRetryable(err error) bool {
	var nr nonRetryable
	if errors.As(err, &nr) {
		return nr.NonRetryable()
	}
	return false
}

// ErrorType is a coarse classification used for logging retry decisions.
type ErrorType int

const (
	// ErrorTypeNone indicates no error
	ErrorTypeNone ErrorType = iota
	// ErrorTypeNetwork indicates network/connection issues (timeouts, resets, refused)
	ErrorTypeNetwork
	// ErrorTypeServer indicates server-side trouble that usually clears (5xx, throttling)
	ErrorTypeServer
	// ErrorTypeAPI indicates a structured API error response
	ErrorTypeAPI
	// ErrorTypeUnknown covers everything else
	ErrorTypeUnknown
)

// Classify sorts an error into an ErrorType by tag first and message second.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	if IsNonRetryable(err) {
		return ErrorTypeAPI
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "unexpected eof") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "too many connections") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "status 429") ||
		strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status 504") {
		return ErrorTypeServer
	}

	return ErrorTypeUnknown
}

// IsTransient reports whether err looks like a failure that a later attempt may not hit.
func IsTransient(err error) bool {
	t := Classify(err)
	return t == ErrorTypeNetwork || t == ErrorTypeServer
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeNone:
		return "none"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeServer:
		return "server"
	case ErrorTypeAPI:
		return "api"
	default:
		return "unknown"
	}
}
