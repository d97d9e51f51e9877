package coverage

import (
	"errors"
	"fmt"
)

var (
	// ErrCoverageUnavailable marks a missing, unreadable or unrecognized
	// coverage artifact. It is distinct from an empty report.
	ErrCoverageUnavailable = errors.New("coverage data unavailable")

	// ErrUnknownFormat is wrapped when the artifact exists but is not a
	// format the parser understands.
	ErrUnknownFormat = errors.New("unrecognized coverage artifact format")
)

// UnavailableError carries the artifact path alongside the cause.
// errors.Is(err, ErrCoverageUnavailable) holds for every UnavailableError.
type UnavailableError struct {
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("coverage data unavailable at %s: %v", e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool {
	return target == ErrCoverageUnavailable
}

func unavailable(path string, err error) error {
	return &UnavailableError{Path: path, Err: err}
}
