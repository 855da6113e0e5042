package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a rejection returned by the backend.
type Error struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status %d (%s): %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsPermanent reports whether retrying err can never succeed: a client error
// other than timeout, too-early or rate limiting.
func IsPermanent(err error) bool {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return false
	}
	switch rerr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return rerr.StatusCode >= 400 && rerr.StatusCode < 500
}

// IsAlreadyActive reports whether the backend refused a start because a segment is already open.
func IsAlreadyActive(err error) bool {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.StatusCode == http.StatusConflict ||
		strings.Contains(strings.ToLower(rerr.Message), "already active")
}
