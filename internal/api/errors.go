package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request by what the caller can do about it
type Kind int

const (
	// KindTransient is a network failure, timeout or 5xx; retrying may help
	KindTransient Kind = iota
	// KindRejected is a 4xx the user can fix by changing the input
	KindRejected
	// KindNotFound means the referenced entity no longer exists
	KindNotFound
	// KindUnauthorized means the credential is missing or expired
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "notfound"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "transient"
	}
}

// Sentinels matched with errors.Is against any *Error of that kind
var (
	ErrTransient    = errors.New("transient failure")
	ErrRejected     = errors.New("request rejected")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

func (k Kind) sentinel() error {
	switch k {
	case KindRejected:
		return ErrRejected
	case KindNotFound:
		return ErrNotFound
	case KindUnauthorized:
		return ErrUnauthorized
	default:
		return ErrTransient
	}
}

// Error is a failed backend request
type Error struct {
	Method string
	Path   string
	Status int    // 0 when no response arrived
	Msg    string // the backend's "error" field, if any
	Kind   Kind
	Err    error // transport error, if any
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// Message is the text worth showing a user
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Status != 0 {
		return http.StatusText(e.Status)
	}
	return e.Err.Error()
}

// classifyStatus maps an HTTP status to a Kind
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status >= 400 && status < 500:
		return KindRejected
	default:
		return KindTransient
	}
}

// KindOf classifies any error. Errors that did not come from the client
// count as transient.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

// UserMessage returns a short description of err for a toast
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}
