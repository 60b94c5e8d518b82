package project

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVersionRecord marks a version record that cannot be read or
	// whose version string does not parse. The project is left out of the run.
	ErrInvalidVersionRecord = errors.New("invalid version record")
	// ErrMissingManifest marks a version record with no project manifest next
	// to it. The project is left out of the run.
	ErrMissingManifest = errors.New("missing project manifest")
	// ErrDuplicateScope is returned when two version records claim one scope.
	ErrDuplicateScope = errors.New("duplicate scope")
	// ErrVersionAlreadySet is returned when a project's new version is
	// assigned twice in one run.
	ErrVersionAlreadySet = errors.New("new version already set")
)

// ExclusionError explains why a version record was left out of a run.
type ExclusionError struct {
	Path string
	Err  error
}

func (e *ExclusionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ExclusionError) Unwrap() error { return e.Err }

func exclude(path string, kind error, format string, args ...any) error {
	return &ExclusionError{Path: path, Err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))}
}
