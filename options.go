package dexcache

import (
	"log/slog"
	"os"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithProgress sets a callback that receives progress events during Load.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Extractor) {
		e.progress = fn
	}
}

// WithMaxAttempts sets how many times each segment extraction is tried
// before Load fails. Values below 1 are treated as 1. Defaults to
// DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(e *Extractor) {
		if n < 1 {
			n = 1
		}
		e.maxAttempts = n
	}
}

// WithDirPerm sets the permissions used when Open creates the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(e *Extractor) {
		e.dirPerm = mode
	}
}

// WithTolerateStoreErrors controls what Load does when the metadata commit
// after an extraction fails.
//
// By default the store error is returned and the artifacts stay on disk for
// the next Load to validate or replace. When enabled, the error is logged and
// Load returns the artifacts; the stale or missing record makes the next Load
// extract again.
func WithTolerateStoreErrors(enabled bool) Option {
	return func(e *Extractor) {
		e.tolerateStoreErrors = enabled
	}
}
