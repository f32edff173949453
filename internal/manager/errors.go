package manager

import (
	"errors"

	"talion/internal/engine"
)

// ErrClosed is returned once Close has started.
var ErrClosed = errors.New("manager closed")

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}

// TooBusyReason returns the admission stage that rejected the request
// ("queue" or "slot"), or "" when err is not a backpressure error.
func TooBusyReason(err error) string {
	var tb tooBusyError
	if errors.As(err, &tb) {
		return tb.reason
	}
	return ""
}

// IsDependencyUnavailable reports whether err indicates the inference runtime
// is missing or not ready (return 503).
func IsDependencyUnavailable(err error) bool {
	return engine.IsDependencyUnavailable(err)
}
