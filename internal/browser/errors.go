// File: internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
	"strings"
)

// LaunchError means the browser binary is missing or could not start. It is
// kept distinct from every other failure so callers can suggest installing
// or configuring a browser.
type LaunchError struct {
	ExecPath string
	Err      error
}

func (e *LaunchError) Error() string {
	path := e.ExecPath
	if path == "" {
		path = "default chrome"
	}
	return fmt.Sprintf("browser launch failed (%s): %v", path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError is returned when navigation fails permanently or after the
// retry budget is spent.
type NavigationError struct {
	URL       string
	Attempts  int
	Status    int
	Permanent bool
	Err       error
}

func (e *NavigationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "navigation to %s failed after %d attempt(s)", e.URL, e.Attempts)
	if e.Status > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ErrPermanent marks a navigation failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent navigation failure")

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Chromium net error codes that will not change on retry.
var permanentMarkers = []string{
	"ERR_NAME_NOT_RESOLVED",
	"ERR_NAME_RESOLUTION_FAILED",
	"ERR_INVALID_URL",
	"ERR_UNKNOWN_URL_SCHEME",
	"ERR_ADDRESS_INVALID",
	"ERR_DISALLOWED_URL_SCHEME",
	"ERR_BLOCKED_BY_CLIENT",
	"ERR_CERT_",
	"ERR_SSL_PROTOCOL_ERROR",
}

// IsPermanent reports whether a navigation error should propagate without retry.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return true
	}
	msg := err.Error()
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
