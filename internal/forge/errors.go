// Package forge talks to the code forges: it reads notifications, fetches resources
// with their history, and dispatches workflows.
package forge

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrRateLimited is returned when the forge refuses a request for rate limiting.
	ErrRateLimited = errors.New("forge rate limit exceeded")
	// ErrNotFound is returned when the forge cannot resolve a resource.
	ErrNotFound = errors.New("resource not found")
)

// StatusError is a non-success response from the forge.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

const maxErrorBody = 2048

func newStatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	if isRateLimited(resp) {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}

func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}
