package dexcache

import (
	"errors"
	"fmt"
)

// Sentinel errors for extractor operations.
var (
	// ErrClosed is returned when an Extractor is used after Close.
	ErrClosed = errors.New("dexcache: extractor closed")

	// ErrLock is returned when the cache directory lock cannot be acquired.
	ErrLock = errors.New("dexcache: lock failed")

	// ErrValidation is returned when previously extracted artifacts do not
	// match the recorded metadata. Load recovers from it by re-extracting.
	ErrValidation = errors.New("dexcache: validation failed")

	// ErrExtraction is returned when a segment could not be extracted within
	// the attempt limit.
	ErrExtraction = errors.New("dexcache: extraction failed")
)

// ValidationError describes the first artifact that failed validation.
// Expected and Actual are set for mismatches; Err is set when the artifact
// or its record could not be read.
type ValidationError struct {
	Index    int
	Path     string
	Reason   string
	Expected int64
	Actual   int64
	Err      error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("dexcache: invalid artifact %d (%s): %s", e.Index, e.Path, e.Reason)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + fmt.Sprintf(": expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a segment that failed every extraction attempt.
type ExtractionError struct {
	Index    int
	Path     string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("dexcache: could not extract segment %d to %s after %d attempts: %v",
		e.Index, e.Path, e.Attempts, e.Err)
}

// Is reports whether target is ErrExtraction.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
