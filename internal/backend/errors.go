package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed model call.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth"
	KindBadRequest  ErrorKind = "bad_request"
	KindServer      ErrorKind = "server"
	KindTransport   ErrorKind = "transport"
	KindUnavailable ErrorKind = "unavailable" // circuit open
	KindCanceled    ErrorKind = "canceled"
	KindDeadline    ErrorKind = "deadline"
	KindOther       ErrorKind = "other"
)

// CallError is returned by backends for every failed call.
type CallError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf classifies any error. Context errors win over everything else so a
// cancelled call is never mistaken for a provider failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadline
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}

// IsRateLimited reports whether err is a provider rate-limit rejection.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// kindForStatus maps an HTTP status code to an ErrorKind.
func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests, code == 529: // 529: provider overloaded
		return KindRateLimited
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuth
	case code >= 400 && code < 500:
		return KindBadRequest
	case code >= 500:
		return KindServer
	default:
		return KindOther
	}
}

// wrapError builds a CallError, keeping context errors recognizable.
func wrapError(provider string, err error, status int) error {
	kind := KindTransport
	if status != 0 {
		kind = kindForStatus(status)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindDeadline
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	}
	return &CallError{Provider: provider, Kind: kind, StatusCode: status, Err: err}
}
