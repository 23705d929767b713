package outbox

import "errors"

var (
	ErrNoHandler     = errors.New("no outbox handler for entity type")
	ErrEmptyEntity   = errors.New("entity type and local id are required")
	ErrEntryNotFound = errors.New("outbox entry not found")
)
