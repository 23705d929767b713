package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session already closed")
	ErrOpeningNotFound = errors.New("opening entry not found")
	ErrNoRemoteOpening = errors.New("no remote opening entry for session")
	ErrMissingProfile  = errors.New("pos profile is required")
)
