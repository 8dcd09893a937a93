// Package arena provides a bump-allocated region backing the store's keys,
// values, and intermediate structures with addresses stable for the
// arena's lifetime, plus a non-owning byte view into that memory.
package arena

import "bytes"

// View is a non-owning (pointer, length) pair identifying a contiguous
// byte range owned by some Arena. Equality is bytewise; ordering is
// lexicographic, with the shorter prefix of a longer string sorting
// first. The zero View is the well-defined empty view.
type View struct {
	data []byte
}

// NewView wraps b without copying. The caller is responsible for b's
// lifetime matching the arena (or other owner) it was sliced from.
func NewView(b []byte) View {
	if len(b) == 0 {
		return View{}
	}
	return View{data: b}
}

// Bytes returns the underlying byte range. Callers must not retain it
// past the lifetime of its owning arena.
func (v View) Bytes() []byte { return v.data }

// Len reports the view's length in bytes.
func (v View) Len() int { return len(v.data) }

// Empty reports whether the view has zero length.
func (v View) Empty() bool { return len(v.data) == 0 }

// String copies the view into a Go string.
func (v View) String() string { return string(v.data) }

// Equal reports bytewise equality.
func (v View) Equal(other View) bool { return bytes.Equal(v.data, other.data) }

// Compare returns -1, 0, or 1 following the lexicographic order described
// in the type doc comment.
func (v View) Compare(other View) int { return bytes.Compare(v.data, other.data) }
