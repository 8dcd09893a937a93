// Package engine coordinates the in-memory table, the flush cycle, and
// the growing list of on-disk runs into a single-writer key/value
// store: the original's DB, generalized to Go's table and sstable
// abstractions.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/internal/kverrors"
	"github.com/lsmstore/lsmstore/internal/logctl"
	"github.com/lsmstore/lsmstore/memtable"
	"github.com/lsmstore/lsmstore/sstable"
	"github.com/lsmstore/lsmstore/value"
)

// Engine is a single-writer key/value store: an active table absorbs
// writes; once it grows past Options.FlushThresholdBytes it is rotated
// into a transient flushing slot, serialized to a new run file, and
// replaced with a fresh active table. Lookups check the active table,
// then the flushing table (if a flush is mid-flight), then every run
// file newest first.
//
// Engine is not safe for concurrent use.
type Engine struct {
	opts Options

	activeArena *arena.Arena
	active      memtable.Table

	flushingArena *arena.Arena
	flushing      memtable.Table

	runs      []*sstable.Reader // newest first
	nextRunID uint64

	closed bool
}

// Open creates opts.Dir if necessary and returns a ready Engine with a
// fresh, empty active table. Open never scans opts.Dir for pre-existing
// run files: an Engine only ever knows about runs it writes itself
// during its own lifetime.
func Open(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	log := logctl.Get()

	if opts.Dir == "" {
		return nil, errors.Wrap(kverrors.ErrInvalidArgument, "engine: Dir must be set")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "engine: failed to create directory %s", opts.Dir)
	}

	e := &Engine{
		opts:        opts,
		activeArena: arena.New(),
		nextRunID:   1,
	}
	e.active = memtable.New(e.activeArena)

	log.Info("engine opened", "dir", opts.Dir, "flush_threshold_bytes", opts.FlushThresholdBytes)
	return e, nil
}

// Put inserts or replaces key's value in the active table, then flushes
// that table if the write brought its approximate memory usage to or
// above the configured threshold.
func (e *Engine) Put(key, val []byte) error {
	if err := e.active.Put(key, val); err != nil {
		return err
	}
	return e.maybeFlush()
}

// Delete marks key as deleted, subject to the same flush trigger as
// Put.
func (e *Engine) Delete(key []byte) error {
	if err := e.active.Delete(key); err != nil {
		return err
	}
	return e.maybeFlush()
}

func (e *Engine) maybeFlush() error {
	if e.active.ApproximateMemoryUsage() < e.opts.FlushThresholdBytes {
		return nil
	}
	return e.flush()
}

// Get looks up key across the active table, the flushing table (if
// any), and every run file newest first, stopping at the first
// definitive answer: a live value, or a tombstone. A tombstone and a
// true absence both surface as kverrors.ErrNotFound; callers cannot
// and need not distinguish them. A live value's bytes are copied into
// dst, which the caller owns.
func (e *Engine) Get(key []byte, dst *arena.Arena) (arena.View, error) {
	if v, tag, err := e.active.Get(key); err == nil {
		return finishMemtableHit(v, tag, dst)
	} else if !errors.Is(err, kverrors.ErrNotFound) {
		return arena.View{}, err
	}

	if e.flushing != nil {
		if v, tag, err := e.flushing.Get(key); err == nil {
			return finishMemtableHit(v, tag, dst)
		} else if !errors.Is(err, kverrors.ErrNotFound) {
			return arena.View{}, err
		}
	}

	for _, run := range e.runs {
		v, tag, err := run.Get(key, dst)
		if err == nil {
			if tag == value.Tombstone {
				return arena.View{}, kverrors.ErrNotFound
			}
			return v, nil
		}
		if !errors.Is(err, kverrors.ErrNotFound) {
			return arena.View{}, err
		}
	}

	return arena.View{}, kverrors.ErrNotFound
}

// GetCopy is a convenience wrapper around Get for callers that just
// want a plain byte slice and don't otherwise need an arena.Arena.
func (e *Engine) GetCopy(key []byte) ([]byte, error) {
	scratch := arena.New()
	v, err := e.Get(key, scratch)
	if err != nil {
		return nil, err
	}
	if v.Empty() {
		return []byte{}, nil
	}
	out := make([]byte, v.Len())
	copy(out, v.Bytes())
	return out, nil
}

func finishMemtableHit(v arena.View, tag value.Tag, dst *arena.Arena) (arena.View, error) {
	if tag == value.Tombstone {
		return arena.View{}, kverrors.ErrNotFound
	}
	if v.Empty() {
		return arena.View{}, nil
	}
	copied, ok := dst.Allocate(v.Len(), arena.DefaultAlignment)
	if !ok {
		return arena.View{}, errors.Wrap(kverrors.ErrArenaAllocFailed, "engine: failed to copy value into destination arena")
	}
	copy(copied.Bytes(), v.Bytes())
	return copied, nil
}

// flush rotates the active table into the flushing slot, installs a
// fresh active table, and serializes the flushing table to a new run
// file, prepending it to the newest-first run list. A failure to write
// the run file discards the flushed table's data: the new active table
// is already in place and the write is not retried, matching the
// original's synchronous, no-recovery design.
func (e *Engine) flush() error {
	log := logctl.Get()

	if e.flushing != nil {
		return errors.Wrap(kverrors.ErrFlushInProgress, "engine: flush")
	}

	e.flushing = e.active
	e.flushingArena = e.activeArena

	newArena := arena.New()
	e.active = memtable.New(newArena)
	e.activeArena = newArena

	usage := e.flushing.ApproximateMemoryUsage()
	log.Info("flushing active table", "approximate_bytes", usage)
	if usage == 0 {
		e.flushing = nil
		e.flushingArena = nil
		return nil
	}

	filename := fmt.Sprintf("%06d.sst", e.nextRunID)
	path := filepath.Join(e.opts.Dir, filename)

	w, err := sstable.NewWriter(sstable.WriterOptions{
		EnableCompression: e.opts.EnableCompression,
		CompressionLevel:  e.opts.CompressionLevel,
		TargetBlockSize:   e.opts.TargetBlockBytes,
	})
	if err != nil {
		// The writer itself never touched disk; restore the prior
		// active table rather than leaving it stranded in the
		// flushing slot.
		e.active = e.flushing
		e.activeArena = e.flushingArena
		e.flushing = nil
		e.flushingArena = nil
		return errors.Wrap(err, "engine: failed to construct run writer")
	}
	defer w.Close()

	if err := w.WriteTable(e.flushing, path); err != nil {
		log.Error("failed to write run file; flushed data is lost", "path", path, "err", err)
		e.flushing = nil
		e.flushingArena = nil
		return errors.Wrapf(err, "engine: failed to write run file %s", path)
	}

	reader, err := sstable.Open(path)
	if err != nil {
		log.Error("failed to open freshly written run file; flushed data is lost", "path", path, "err", err)
		e.flushing = nil
		e.flushingArena = nil
		return errors.Wrapf(err, "engine: failed to open run file %s", path)
	}

	e.runs = append([]*sstable.Reader{reader}, e.runs...)
	e.nextRunID++
	e.flushing = nil
	e.flushingArena = nil

	log.Info("flush complete", "path", path, "run_count", len(e.runs))
	return nil
}

// Close releases every open run file's mmap. The Engine must not be
// used for reads or writes afterward. Close is idempotent: a second
// call is a no-op rather than double-unmapping already-closed runs.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for _, run := range e.runs {
		if err := run.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.runs = nil
	return firstErr
}
