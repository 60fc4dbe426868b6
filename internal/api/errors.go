// Package api provides error types for platform API responses.
package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
)

// APIError is a non-success response from the platform API.
// It is never retried by retry.Policy: the request reached the server and was refused.
type APIError struct {
	Operation  string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s failed: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Operation, e.StatusCode, body)
}

// NonRetryable tags the error for retry.IsNonRetryable.
func (e *APIError) NonRetryable() bool {
	return true
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an API error.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	return StatusCode(err) == nethttp.StatusNotFound
}

// IsUnauthorized reports whether the token was rejected.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == nethttp.StatusUnauthorized || code == nethttp.StatusForbidden
}
