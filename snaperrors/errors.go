// Package snaperrors defines the sentinel error kinds surfaced by the
// snapshot subsystem.
package snaperrors

import "errors"

var (
	// ErrAlreadyLoaded is returned when a live snapshot load is attempted
	// while a live snapshot is already loaded on the same block object.
	ErrAlreadyLoaded = errors.New("snapshot: live snapshot already loaded")

	// ErrNotLoaded is returned when unload or snapshot is called before a
	// successful load.
	ErrNotLoaded = errors.New("snapshot: no live snapshot loaded")

	// ErrIO wraps backing-file read/write/truncate/fsync failures.
	ErrIO = errors.New("snapshot: backing file i/o failure")

	// ErrCorrupt covers cookie decode failures, checksum mismatches, and
	// extent-list read inconsistencies.
	ErrCorrupt = errors.New("snapshot: corrupt cookie or extent list")

	// ErrInvalidArgument covers a malformed snapshot list: a missing ADD
	// terminal, a DELETE entry with no successor, and similar shape errors.
	ErrInvalidArgument = errors.New("snapshot: malformed snapshot list")
)
