package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBaseURL is returned when a call is attempted before a base URL
	// is configured. No request is sent.
	ErrNoBaseURL = errors.New("billing: API base not configured")
	// ErrMissingToken is returned by authenticated calls with an empty token.
	ErrMissingToken = errors.New("billing: missing access token")
)

// TransportError means no response reached the client: timeouts, refused
// connections, DNS failures. It carries no status code.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("billing: %s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError means a response was received but reports failure or
// cannot be used, including a body that broke off after the status line.
type RejectionError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("billing: %s: rejected (%d): %s", e.Op, e.StatusCode, e.Message)
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsRejection returns the rejection carried by err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
