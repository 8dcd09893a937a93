// Package kverrors holds the sentinel errors shared across the storage
// core, mirroring the teacher's error package (sentinel errors.New values)
// and spec.md's §6 outcome taxonomy, minus the two internal-only codes
// (found-tombstone, run-miss) that never cross a package boundary and are
// expressed instead as ordinary Go return values (see value.Tag).
package kverrors

import "errors"

var (
	// ErrNotFound means no live value exists for a key: it was never
	// written, or the most recent write was a delete.
	ErrNotFound = errors.New("lsmstore: key not found")

	// ErrInvalidArgument covers caller-supplied problems: an empty key, a
	// key or value too large to fit a 32-bit length field.
	ErrInvalidArgument = errors.New("lsmstore: invalid argument")

	// ErrArenaAllocFailed surfaces an out-of-memory condition from the
	// bump allocator backing a table.
	ErrArenaAllocFailed = errors.New("lsmstore: arena allocation failed")

	// ErrCorruption flags a structural parse failure in a run file: a
	// truncated header, an entry whose length fields overrun the block,
	// or a tombstone with a nonzero value length. It is unrelated to
	// content checksums, which are out of scope for this store.
	ErrCorruption = errors.New("lsmstore: corruption")

	// ErrNotSupported covers a block whose compression flag is neither
	// 0 nor 1, or an operation attempted on a component not yet
	// initialized.
	ErrNotSupported = errors.New("lsmstore: not supported")

	// ErrFlushInProgress is the defensive-assertion error for the
	// single-writer invariant on the engine's flushing slot (see
	// engine.Engine): synchronous callers can never actually observe
	// this, since a flush never suspends mid-Put/Delete.
	ErrFlushInProgress = errors.New("lsmstore: a flush is already in progress")
)
