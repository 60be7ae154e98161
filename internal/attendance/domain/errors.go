package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the attendance service; handlers map them to HTTP status codes.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("not authorized for this course")
	ErrNotFound        = errors.New("not found")
	// ErrAlreadyRecorded is returned by stores when a (session, student) scan already exists.
	ErrAlreadyRecorded = errors.New("scan already recorded")
)

// DecodeError reports why a raw QR payload could not be decoded.
type DecodeError struct {
	Field  string // empty when the text is not a JSON object at all
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode payload: %s", e.Reason)
	}
	return fmt.Sprintf("decode payload: %s: %s", e.Field, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrSessionExists is returned by stores when a session with the same course and window already exists.
// Two generate calls landing in the same second produce identical windows; the loser reuses the winner's session.
var ErrSessionExists = errors.New("session with this window already exists")
