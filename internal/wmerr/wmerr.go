// Package wmerr defines the error taxonomy used across the connection core:
// a small set of sentinel/typed errors that every command-layer entry point
// returns instead of raw OS status codes, plus a diagnosis helper in the
// spirit of a status-code-to-suggestion table.
package wmerr

import (
	"errors"
	"fmt"

	"github.com/tilepilot/axcore/internal/wmtypes"
)

// ErrNotTrusted is returned at startup when the process does not hold
// accessibility trust. It is never returned from any other entry point.
var ErrNotTrusted = errors.New("process is not trusted for the accessibility API")

// ErrNoScreens is returned when display enumeration comes back empty.
var ErrNoScreens = errors.New("no active displays reported")

// ErrWindowNotFound is the transient-race sentinel: the accessibility
// handle for an on-screen window dictionary could not be resolved.
// Enumeration callers skip this error silently; everything else is
// propagated.
var ErrWindowNotFound = errors.New("window not found")

// UnknownClientError is returned by any lookup that misses after a refresh.
type UnknownClientError struct {
	ID wmtypes.WinId
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("unknown client %d", e.ID)
}

// UnknownClient constructs an UnknownClientError for id.
func UnknownClient(id wmtypes.WinId) error {
	return &UnknownClientError{ID: id}
}

// IsUnknownClient reports whether err (or anything it wraps) is an
// UnknownClientError.
func IsUnknownClient(err error) bool {
	var uce *UnknownClientError
	return errors.As(err, &uce)
}

// CustomError wraps any other OS call failure with the operation name and
// the native status code.
type CustomError struct {
	Op   string
	Code int
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%s: %d", e.Op, e.Code)
}

// Custom constructs a CustomError describing a failed operation op with
// native status code.
func Custom(op string, code int) error {
	return &CustomError{Op: op, Code: code}
}

// CodeOf extracts the native status code embedded in err, if err is (or
// wraps) a CustomError, so a call site can re-wrap with its own op name
// without losing the code Diagnose depends on. Returns 0 otherwise.
func CodeOf(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

// Diagnose turns a CustomError's embedded status code into an
// operator-facing suggestion.
// Returns "" if err is not a CustomError or carries no known code.
func Diagnose(err error) string {
	var ce *CustomError
	if !errors.As(err, &ce) {
		return ""
	}
	switch ce.Code {
	case -25204: // kAXErrorAPIDisabled
		return "accessibility permission was revoked; re-grant it in System Settings > Privacy & Security > Accessibility"
	case -25212: // kAXErrorNotImplemented
		return "the target application does not implement this accessibility attribute"
	case -25201: // kAXErrorInvalidUIElement
		return "the window or application element no longer exists; it likely closed mid-command"
	case -25202: // kAXErrorCannotComplete
		return "the application did not respond within the messaging timeout; it may be frozen"
	default:
		return ""
	}
}
