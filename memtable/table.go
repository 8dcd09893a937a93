// Package memtable implements the store's in-memory sorted table: an
// ordered key to (value, tag) map, backed by an arena.Arena so that keys
// and values it holds have stable addresses for the table's lifetime.
package memtable

import (
	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/value"
)

// Table is the ordered, in-memory key to (value, tag) map that backs the
// engine's active and flushing slots. A single Table instance is never
// used from more than one goroutine at a time.
type Table interface {
	// Put inserts or replaces key's entry as live with value. Both key and
	// value are copied into the table's arena; the caller's slices may be
	// reused or freed immediately after Put returns.
	Put(key, val []byte) error

	// Delete inserts or replaces key's entry as a tombstone. Same failure
	// modes as Put on the key-copy path; no value is stored.
	Delete(key []byte) error

	// Get looks up key. It returns kverrors.ErrNotFound if the key has
	// never been written. A tombstone is a definitive answer, not a
	// not-found: it is reported via tag == Tombstone with a nil error and
	// an empty value view.
	Get(key []byte) (v arena.View, tag value.Tag, err error)

	// ApproximateMemoryUsage estimates the table's footprint, combining
	// the backing arena's usage with the table's own bookkeeping
	// overhead. Used by the engine to decide when to flush.
	ApproximateMemoryUsage() uint64

	// NewCursor returns a cursor over the table's current contents in
	// ascending key order. The cursor is not safe to use concurrently
	// with further writes to the table.
	NewCursor() Cursor
}

// Cursor walks a Table's entries in ascending key order.
type Cursor interface {
	// SeekFirst repositions the cursor at the smallest key, or makes it
	// invalid if the table is empty.
	SeekFirst()

	// Seek repositions the cursor at the smallest key greater than or
	// equal to target, or makes it invalid if no such key exists.
	Seek(target []byte)

	// Next advances the cursor by one entry. Calling Next on an invalid
	// cursor is a no-op.
	Next()

	// Valid reports whether the cursor currently refers to an entry.
	Valid() bool

	// Key returns the current entry's key. Valid must be true.
	Key() arena.View

	// Entry returns the current entry's value and tag. Valid must be
	// true.
	Entry() (val arena.View, tag value.Tag)
}
