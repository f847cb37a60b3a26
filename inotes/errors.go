package inotes

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionRedirect is reported when the server answers with a redirect,
	// which iNotes does when the session cookies are expired or invalid.
	ErrSessionRedirect = errors.New("server redirected the request, session is probably expired")
	ErrMissingUNID     = errors.New("view entry without unid")
)

// ProtocolError is returned when a response cannot be interpreted. It is
// never retried.
type ProtocolError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
