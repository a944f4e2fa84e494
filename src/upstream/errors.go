package upstream

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Upstream error taxonomy
// -----------------------------------------------------------------------------

// Kind classifies an upstream failure for retry decisions.
type Kind int

const (
	KindTimeout Kind = iota
	KindRateLimited
	KindAuthFailed
	KindBadRequest
	KindNotFound
	KindInternal
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailed:
		return "auth_failed"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error carries the classification plus the upstream RPC code when present.
type Error struct {
	Kind       Kind
	Code       int
	Message    string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("upstream %s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Transient reports whether the failure is worth retrying.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindUnavailable:
		return true
	}
	return false
}

// AsError extracts an *Error from err, wrapping unknown errors as internal.
func AsError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Cause: err}
}

func newError(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// classifyRPCCode maps exchange RPC error codes onto the taxonomy.
// 10028/10029 are the documented too-many-requests codes; 13xxx are
// auth/grant failures.
func classifyRPCCode(code int, msg string) *Error {
	switch {
	case code == 10028 || code == 10029:
		return newError(KindRateLimited, code, msg)
	case code == 13009 || (code >= 13000 && code < 13100):
		return newError(KindAuthFailed, code, msg)
	case code == -32602 || (code >= -32700 && code <= -32600):
		return newError(KindBadRequest, code, msg)
	case code >= 11000 && code < 12000:
		return newError(KindBadRequest, code, msg)
	case code == 10004:
		return newError(KindNotFound, code, msg)
	default:
		return newError(KindInternal, code, msg)
	}
}

// classifyHTTPStatus maps transport-level statuses onto the taxonomy.
func classifyHTTPStatus(status int) *Error {
	switch {
	case status == 429:
		return newError(KindRateLimited, status, "too many requests")
	case status == 401 || status == 403:
		return newError(KindAuthFailed, status, "authentication rejected")
	case status == 404:
		return newError(KindNotFound, status, "not found")
	case status >= 500:
		return newError(KindUnavailable, status, fmt.Sprintf("upstream returned %d", status))
	case status >= 400:
		return newError(KindBadRequest, status, fmt.Sprintf("upstream returned %d", status))
	default:
		return newError(KindInternal, status, fmt.Sprintf("unexpected status %d", status))
	}
}
