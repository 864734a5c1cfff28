package window

import (
	"errors"
	"fmt"
)

// ErrWindowGone is returned by backends when the window behind a WindowID is
// known to no longer exist.
var ErrWindowGone = errors.New("window no longer exists")

// ErrNotSupported is returned by backends for operations the platform cannot
// perform.
var ErrNotSupported = errors.New("operation not supported by backend")

// WindowLostError is returned by mutating handle operations once the window
// has disappeared.
type WindowLostError struct {
	ID    WindowID
	Title string
}

func (e *WindowLostError) Error() string {
	return fmt.Sprintf("window %s (%q) no longer exists", e.ID, e.Title)
}

func (e *WindowLostError) Unwrap() error {
	return ErrWindowGone
}

// BackendUnavailableError reports that a platform capability is missing, for
// example a display server that cannot be reached or a missing permission.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// IsBackendUnavailable reports whether err is or wraps a
// *BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var unavailable *BackendUnavailableError
	return errors.As(err, &unavailable)
}
