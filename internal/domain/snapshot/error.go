package snapshot

import "errors"

var (
	ErrUnknownSection    = errors.New("unknown snapshot section")
	ErrSectionNotFetched = errors.New("section was not fetched")
	ErrInvalidPayload    = errors.New("invalid snapshot payload")
)
