package erp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when the backend answers 404 for a resource or collection.
	ErrNotFound = errors.New("remote resource not found")
	// ErrPlaceholderName is returned when a local placeholder would be sent as a document name.
	ErrPlaceholderName = errors.New("placeholder identifier cannot be used as a remote name")
	ErrUnauthorized    = errors.New("remote rejected the credentials")
)

// duplicatePhrases are the backend messages that mean an equivalent record already exists.
var duplicatePhrases = []string{
	"duplicate",
	"already exists",
	"must be unique",
	"unique constraint",
}

// RemoteError is a non-2xx answer from the ERP backend.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: status %d", e.Status)
	}
	return fmt.Sprintf("remote error: status %d: %s", e.Status, e.Message)
}

// Is lets errors.Is match ErrNotFound on a 404 and ErrUnauthorized on a 401 or 403.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}

// IsConflict reports whether err means the remote already holds an equivalent record:
// an HTTP 409 or a message carrying one of the known duplicate-key phrases.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}

	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusConflict {
		return true
	}

	return IsDuplicateMessage(err.Error())
}

// IsDuplicateMessage matches msg against the known duplicate-key phrases, case-insensitively.
func IsDuplicateMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, phrase := range duplicatePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
