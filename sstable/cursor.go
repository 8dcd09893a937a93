package sstable

import (
	"github.com/pkg/errors"

	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/internal/kverrors"
	"github.com/lsmstore/lsmstore/value"
)

// Cursor walks a Reader's entries in ascending key order, one block at a
// time. There is no index, so Seek is a linear scan forward from the
// first block, not a binary search; callers that only need a single
// lookup should prefer Reader.Get.
type Cursor struct {
	r   *Reader
	buf []byte // current block's decoded payload
	pos int    // offset of the current entry within buf
	sz  int    // current entry's size in bytes, 0 when invalid

	nextBlockOffset int
	cur             parsedEntry
	valid           bool
	err             error
}

// NewCursor returns a cursor positioned before the first entry; call
// SeekFirst or Seek before reading.
func (r *Reader) NewCursor() *Cursor {
	return &Cursor{r: r}
}

// SeekFirst positions the cursor at the run's smallest key.
func (c *Cursor) SeekFirst() {
	c.buf = nil
	c.pos = 0
	c.nextBlockOffset = 0
	c.err = nil
	c.advance()
}

// Seek positions the cursor at the smallest key greater than or equal to
// target, scanning forward from the beginning of the run.
func (c *Cursor) Seek(target []byte) {
	c.SeekFirst()
	want := arena.NewView(target)
	for c.valid && c.cur.key.Compare(want) < 0 {
		c.advance()
	}
}

// Next advances the cursor by one entry.
func (c *Cursor) Next() {
	if c.valid {
		c.advance()
	}
}

// Valid reports whether the cursor refers to a readable entry. A false
// result after a scan may mean clean end-of-run or a parse error;
// callers that must distinguish the two should check Status.
func (c *Cursor) Valid() bool { return c.valid }

// Status returns the error that stopped the scan, if any. It is nil on
// a clean end-of-run.
func (c *Cursor) Status() error { return c.err }

// Key returns the current entry's key. Valid must be true.
func (c *Cursor) Key() arena.View { return c.cur.key }

// Entry returns the current entry's value and tag. Valid must be true.
func (c *Cursor) Entry() (arena.View, value.Tag) { return c.cur.value, c.cur.tag }

// advance loads the next entry from the current block, crossing into the
// next block (or past the end of the file) as needed.
func (c *Cursor) advance() {
	for {
		if c.buf != nil && c.pos < len(c.buf) {
			ent, consumed, err := parseEntry(c.buf, c.pos)
			if err != nil {
				c.valid = false
				c.err = err
				return
			}
			c.cur = ent
			c.pos += consumed
			c.valid = true
			return
		}

		if c.nextBlockOffset >= len(c.r.data) {
			c.valid = false
			return
		}

		payload, onDiskSize, err := c.r.loadBlock(c.nextBlockOffset)
		if err != nil {
			c.valid = false
			c.err = err
			return
		}
		if onDiskSize == 0 {
			c.valid = false
			c.err = errors.Wrap(kverrors.ErrCorruption, "sstable: zero-sized block before EOF")
			return
		}
		c.nextBlockOffset += blockHeaderSize + onDiskSize
		c.buf = payload
		c.pos = 0
	}
}
