package arena

import (
	"github.com/negrel/assert"
)

// DefaultAlignment matches the original's alignof(std::max_align_t)
// approximation; Go rarely needs anything stricter than 8 for the byte
// payloads this arena backs (keys, values, serialization scratch).
const DefaultAlignment = 8

// defaultBlockSize is the capacity of the first block allocated for a new
// Arena, mirroring the original's default Arena(size_t size = 8192).
const defaultBlockSize = 8192

// Arena is a bump-allocated region: a small number of large blocks
// service many small allocations, all freed together when the Arena is
// dropped. Every address returned by Allocate remains valid, and no two
// allocations overlap, until the Arena becomes garbage.
//
// Arena is not safe for concurrent use; the store built on top of it is
// single-writer by design (see the engine package).
type Arena struct {
	blocks   [][]byte
	cur      []byte // the active block's full backing capacity
	curUsed  int    // bytes already handed out from cur
	totalUsed uint64
}

// New creates an Arena with an initial block of the default size.
func New() *Arena {
	a := &Arena{}
	a.allocateBlock(defaultBlockSize)
	return a
}

// NewSized creates an Arena whose first block holds at least initialSize
// bytes, for callers who know their table will be large up front.
func NewSized(initialSize int) *Arena {
	if initialSize <= 0 {
		initialSize = defaultBlockSize
	}
	a := &Arena{}
	a.allocateBlock(initialSize)
	return a
}

// TotalBytesUsed returns the sum of successful allocation sizes, not
// including alignment padding consumed along the way.
func (a *Arena) TotalBytesUsed() uint64 { return a.totalUsed }

// BlockCount reports how many underlying blocks this arena has grown to.
// Diagnostic only; not consulted by the allocation algorithm itself.
func (a *Arena) BlockCount() int { return len(a.blocks) }

// Allocate returns a View over num_bytes freshly reserved bytes aligned
// to alignment, which must be a power of two. A request for zero bytes
// succeeds trivially and returns the empty View without consuming space.
// Allocate reports ok=false only when the underlying allocation itself
// fails (out of memory); no partial state is observable in that case.
func (a *Arena) Allocate(numBytes int, alignment int) (View, bool) {
	if numBytes == 0 {
		return View{}, true
	}
	assert.True(alignment > 0 && alignment&(alignment-1) == 0, "arena: alignment must be a power of two")

	if b, ok := a.tryBump(numBytes, alignment); ok {
		return b, true
	}

	// Current block lacks room. Grow: a fresh block sized to guarantee
	// the request fits even in the worst alignment case, matching the
	// original's `num_bytes + (alignment - 1)` sizing, and never smaller
	// than defaultBlockSize.
	size := numBytes + alignment - 1
	if size < defaultBlockSize {
		size = defaultBlockSize
	}
	if !a.allocateBlock(size) {
		return View{}, false
	}
	b, ok := a.tryBump(numBytes, alignment)
	assert.True(ok, "arena: retry after growing a block must succeed")
	return b, ok
}

// tryBump attempts to satisfy the request from the current block without
// growing. It returns ok=false (not a failure) when there isn't room.
func (a *Arena) tryBump(numBytes int, alignment int) (View, bool) {
	if a.cur == nil {
		return View{}, false
	}
	aligned := alignUp(a.curUsed, alignment)
	end := aligned + numBytes
	if end > len(a.cur) {
		return View{}, false
	}
	a.curUsed = end
	a.totalUsed += uint64(numBytes)
	return View{data: a.cur[aligned:end]}, true
}

// allocateBlock installs a fresh current block of at least size bytes.
// It reports false if the block could not be obtained (mirrors the
// original's OS-allocation-returns-null path); callers must check the
// result rather than proceeding with a nil block, a bug the original's
// design notes flag explicitly.
func (a *Arena) allocateBlock(size int) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	block := make([]byte, size)
	a.blocks = append(a.blocks, block)
	a.cur = block
	a.curUsed = 0
	return true
}

func alignUp(offset int, alignment int) int {
	mask := alignment - 1
	return (offset + mask) &^ mask
}
