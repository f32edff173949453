package engine

import (
	"errors"
	"fmt"
)

// ErrModelMismatch is returned by Open when a llama-server reports a model
// file that does not belong to the configured model id.
var ErrModelMismatch = errors.New("llama server serves a different model")

// dependencyUnavailableError signals a missing or not-yet-ready runtime so the
// HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// StatusError is a non-2xx answer from llama-server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llama server http error: %d: %s", e.Code, e.Body)
}
