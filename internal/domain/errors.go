package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared across the engine. Jobs are isolated: any of these
// failing inside one job is logged and reported without aborting the worker.
var (
	// ErrConfig: missing master key, webhook URL, or LLM configuration.
	ErrConfig = errors.New("configuration missing")
	// ErrAuth: provider rejected the API key (HTTP 401).
	ErrAuth = errors.New("provider authentication failed")
	// ErrPermission: provider denied the operation (HTTP 403).
	ErrPermission = errors.New("provider permission denied")
	// ErrEndpoint: provider endpoint not found (HTTP 404).
	ErrEndpoint = errors.New("provider endpoint not found")
	// ErrLLM: model call failed; classify degrades to the safe default
	// instead of surfacing this.
	ErrLLM = errors.New("llm call failed")
	// ErrRoutingMiss: inbound message matched no integration.
	ErrRoutingMiss = errors.New("no integration matches sender")
	// ErrDup: inbound insert collided on the at-most-once key.
	ErrDup = errors.New("duplicate inbound message")
	// ErrInvariant: a data-model invariant was violated.
	ErrInvariant = errors.New("invariant violation")
	// ErrNotFound: requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// HTTPStatusError wraps a non-2xx provider response that is not one of the
// dedicated auth/permission/endpoint cases.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("provider returned http %d", e.StatusCode)
}

// NewHTTPStatusError builds an HTTPStatusError, keeping at most a short body
// prefix for diagnostics.
func NewHTTPStatusError(code int, body string) *HTTPStatusError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &HTTPStatusError{StatusCode: code, Body: body}
}

// ErrorCategory maps an error onto the operator-visible taxonomy label used
// in structured error bodies.
func ErrorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrEndpoint):
		return "endpoint"
	case errors.Is(err, ErrLLM):
		return "llm"
	case errors.Is(err, ErrRoutingMiss):
		return "routing_miss"
	case errors.Is(err, ErrDup):
		return "duplicate"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		var httpErr *HTTPStatusError
		if errors.As(err, &httpErr) {
			return "http"
		}
		return "internal"
	}
}
