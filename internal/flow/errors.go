package flow

import "errors"

var (
	// ErrNotBuilt reports an operation that requires a completed build for
	// its tag. The remedy is always the same: run build first.
	ErrNotBuilt = errors.New("run not built; run build first")

	// ErrNoDatabase reports that no database file exists under the run
	// directory.
	ErrNoDatabase = errors.New("no database file found under run directory")
)
