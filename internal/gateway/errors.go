package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed backend call. The set is closed: callers switch
// on it to pick a message, never on raw status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method that fails.
type Error struct {
	Op      string // operation, e.g. "create item"
	Kind    Kind
	Status  int    // HTTP status; 0 when the request never got an answer
	Message string // human-readable, from the backend when it sent one
	Err     error  // underlying transport or decoding error, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	return fmt.Sprintf("gateway: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindUnknown
}

// kindForStatus maps an HTTP status onto a Kind.
func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return KindUnavailable
	default:
		return KindUnknown
	}
}
