package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth is returned for 401 and 403 responses.
	ErrAuth = errors.New("not authorized")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for 409 and 410 responses.
	ErrConflict = errors.New("conflict")
	// ErrNetwork covers transport failures and 5xx responses.
	ErrNetwork = errors.New("network error")
	// ErrAcceptRejected means someone else already took the request.
	ErrAcceptRejected = errors.New("this request was already taken")
	// ErrHistoryUnavailable wraps any failure of the history fetch.
	ErrHistoryUnavailable = errors.New("history unavailable")
)

// StatusError is a non-2xx response. Message carries the server's
// {message} body when it sent one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// Unwrap maps the status code onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrAuth
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code == http.StatusConflict || e.Code == http.StatusGone:
		return ErrConflict
	case e.Code >= http.StatusInternalServerError:
		return ErrNetwork
	default:
		return nil
	}
}

// ServerMessage returns the server-provided message from err, if any.
func ServerMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}
