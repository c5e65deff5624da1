package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnreachable means the backend could not be contacted at all.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrUnauthorized means the backend rejected the credentials.
	ErrUnauthorized = errors.New("authentication rejected")
	// ErrBackend covers every other non-success response.
	ErrBackend = errors.New("backend error")
)

// Error describes a failed backend call
type Error struct {
	Kind   error
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Op + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func statusError(op string, code int, detail string) error {
	kind := ErrBackend
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		kind = ErrUnauthorized
	}
	return &Error{Kind: kind, Op: op, Status: code, Detail: detail}
}

func transportError(op string, err error) error {
	return &Error{Kind: ErrUnreachable, Op: op, Err: err}
}

// Describe turns an error into a short summary safe to show to users
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "The server took too long to respond."
	case errors.Is(err, ErrUnreachable):
		return "Cannot reach the TeamFlow server. Check that it is running and the API URL is correct."
	case errors.Is(err, ErrUnauthorized):
		return "Sign-in was rejected. Check the bot settings and try again."
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" {
			return fmt.Sprintf("The server reported an error: %s", apiErr.Detail)
		}
		if apiErr.Status != 0 {
			return fmt.Sprintf("The server reported an error (HTTP %d).", apiErr.Status)
		}
	}
	return "Something went wrong talking to the server."
}
