package memtable

import (
	"math/rand"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/internal/kverrors"
	"github.com/lsmstore/lsmstore/value"
)

// maxHeight and probability follow the usual skip-list defaults (as in
// LevelDB's and Badger's implementations): a 1-in-4 chance of promotion
// per level bounds the expected search cost at O(log n) without needing
// many levels in practice.
const (
	maxHeight   = 12
	probability = 0.25
)

// perNodeOverhead approximates a node's bookkeeping cost beyond the
// key/value bytes already counted by the arena, so
// ApproximateMemoryUsage reflects more than just arena usage.
const perNodeOverhead = uint64(unsafe.Sizeof(node{})) + 8 // plus one forward pointer at minimum

type node struct {
	key  arena.View
	val  arena.View
	tag  value.Tag
	next []*node
}

// SkipList is the Table implementation used for both the engine's active
// and flushing slots. It stores every key and value it's given inside
// its own arena.Arena, so entries remain valid for as long as that arena
// does, independent of the SkipList struct itself.
type SkipList struct {
	arena  *arena.Arena
	head   *node
	height int
	rnd    *rand.Rand

	overhead uint64
}

// New builds an empty SkipList that copies all keys and values it's
// given into a. The caller owns a's lifetime; a SkipList never frees or
// replaces the arena it was constructed with.
func New(a *arena.Arena) *SkipList {
	return &SkipList{
		arena:  a,
		head:   &node{next: make([]*node, maxHeight)},
		height: 1,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// maxEntrySize bounds a single key or value at the largest length the
// run-file length fields (u32 LE) can record without truncating.
const maxEntrySize = 1 << 32

func (s *SkipList) Put(key, val []byte) error {
	if len(key) == 0 {
		return errors.Wrap(kverrors.ErrInvalidArgument, "memtable: empty key")
	}
	if len(key) >= maxEntrySize {
		return errors.Wrap(kverrors.ErrInvalidArgument, "memtable: key too large")
	}
	if len(val) >= maxEntrySize {
		return errors.Wrap(kverrors.ErrInvalidArgument, "memtable: value too large")
	}
	kv, ok := s.copyIn(key)
	if !ok {
		return errors.Wrap(kverrors.ErrArenaAllocFailed, "memtable: key copy")
	}
	vv, ok := s.copyIn(val)
	if !ok {
		return errors.Wrap(kverrors.ErrArenaAllocFailed, "memtable: value copy")
	}
	s.insertOrReplace(kv, vv, value.Live)
	return nil
}

func (s *SkipList) Delete(key []byte) error {
	if len(key) == 0 {
		return errors.Wrap(kverrors.ErrInvalidArgument, "memtable: empty key")
	}
	if len(key) >= maxEntrySize {
		return errors.Wrap(kverrors.ErrInvalidArgument, "memtable: key too large")
	}
	kv, ok := s.copyIn(key)
	if !ok {
		return errors.Wrap(kverrors.ErrArenaAllocFailed, "memtable: key copy")
	}
	s.insertOrReplace(kv, arena.View{}, value.Tombstone)
	return nil
}

func (s *SkipList) Get(key []byte) (arena.View, value.Tag, error) {
	target := arena.NewView(key)
	n := s.seekGreaterOrEqual(target)
	if n == nil || n.key.Compare(target) != 0 {
		return arena.View{}, 0, kverrors.ErrNotFound
	}
	return n.val, n.tag, nil
}

func (s *SkipList) ApproximateMemoryUsage() uint64 {
	return s.arena.TotalBytesUsed() + s.overhead
}

func (s *SkipList) NewCursor() Cursor {
	return &skipListCursor{list: s}
}

// copyIn duplicates b into the table's arena, distinguishing a trivial
// empty copy (ok=true, zero View) from an allocation failure (ok=false).
func (s *SkipList) copyIn(b []byte) (arena.View, bool) {
	if len(b) == 0 {
		return arena.View{}, true
	}
	v, ok := s.arena.Allocate(len(b), arena.DefaultAlignment)
	if !ok {
		return arena.View{}, false
	}
	copy(v.Bytes(), b)
	return v, true
}

// seekGreaterOrEqual returns the first node whose key is >= target, or
// nil if every stored key is smaller.
func (s *SkipList) seekGreaterOrEqual(target arena.View) *node {
	cur := s.head
	for level := s.height - 1; level >= 0; level-- {
		for cur.next[level] != nil && cur.next[level].key.Compare(target) < 0 {
			cur = cur.next[level]
		}
	}
	return cur.next[0]
}

// insertOrReplace gives key the entry (val, tag). A key already present
// keeps its node identity: only the value view and tag change, so the
// node's prior arena allocation for an old value is orphaned rather than
// reused, matching the table's append-only arena discipline.
func (s *SkipList) insertOrReplace(key, val arena.View, tag value.Tag) {
	var update [maxHeight]*node
	cur := s.head
	for level := s.height - 1; level >= 0; level-- {
		for cur.next[level] != nil && cur.next[level].key.Compare(key) < 0 {
			cur = cur.next[level]
		}
		update[level] = cur
	}

	if existing := update[0].next[0]; existing != nil && existing.key.Compare(key) == 0 {
		existing.val = val
		existing.tag = tag
		return
	}

	height := s.randomHeight()
	if height > s.height {
		for level := s.height; level < height; level++ {
			update[level] = s.head
		}
		s.height = height
	}

	n := &node{key: key, val: val, tag: tag, next: make([]*node, height)}
	for level := 0; level < height; level++ {
		n.next[level] = update[level].next[level]
		update[level].next[level] = n
	}
	s.overhead += perNodeOverhead + uint64(height)*8
}

func (s *SkipList) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Float64() < probability {
		h++
	}
	return h
}

type skipListCursor struct {
	list *SkipList
	cur  *node
}

func (c *skipListCursor) SeekFirst() { c.cur = c.list.head.next[0] }

func (c *skipListCursor) Seek(target []byte) {
	c.cur = c.list.seekGreaterOrEqual(arena.NewView(target))
}

func (c *skipListCursor) Next() {
	if c.cur != nil {
		c.cur = c.cur.next[0]
	}
}

func (c *skipListCursor) Valid() bool { return c.cur != nil }

func (c *skipListCursor) Key() arena.View { return c.cur.key }

func (c *skipListCursor) Entry() (arena.View, value.Tag) { return c.cur.val, c.cur.tag }
