package sstable

import (
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/internal/kverrors"
	"github.com/lsmstore/lsmstore/value"
)

// Reader provides read-only point lookups and ascending scans over a
// sealed run file. A run file is only ever opened for reading once
// written in full by a Writer; a Reader never mutates it.
type Reader struct {
	path string
	data []byte // mmap of the whole file
	dec  *zstd.Decoder
}

// Open mmaps path read-only. The file must already be complete; Reader
// has no notion of appending to a run in progress.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: failed to open run file %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: failed to stat run file %s", path)
	}

	r := &Reader{path: path}
	if info.Size() > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return nil, errors.Wrapf(err, "sstable: failed to mmap run file %s", path)
		}
		r.data = data
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "sstable: failed to create zstd decoder")
	}
	r.dec = dec
	return r, nil
}

// Close releases the mmap and the zstd decoder. The Reader must not be
// used afterward.
func (r *Reader) Close() error {
	r.dec.Close()
	if r.data != nil {
		return unix.Munmap(r.data)
	}
	return nil
}

// Path returns the filesystem path this Reader was opened from.
func (r *Reader) Path() string { return r.path }

// Get scans the run front to back looking for key, copying a live
// value's bytes into dst if found. It returns kverrors.ErrNotFound if
// key is absent from this run entirely; a tombstone is reported via
// tag == value.Tombstone with a nil error, not ErrNotFound, matching
// the engine's need to distinguish "no verdict from this run" from "a
// definitive delete in this run".
func (r *Reader) Get(key []byte, dst *arena.Arena) (arena.View, value.Tag, error) {
	if len(key) == 0 {
		return arena.View{}, 0, errors.Wrap(kverrors.ErrInvalidArgument, "sstable: empty key")
	}

	var offset int
	for offset < len(r.data) {
		payload, onDiskSize, err := r.loadBlock(offset)
		if err != nil {
			return arena.View{}, 0, err
		}
		if onDiskSize == 0 {
			return arena.View{}, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: zero-sized block before EOF")
		}

		pos := 0
		for pos < len(payload) {
			ent, consumed, err := parseEntry(payload, pos)
			if err != nil {
				return arena.View{}, 0, err
			}
			if ent.key.Equal(arena.NewView(key)) {
				if ent.tag == value.Tombstone {
					return arena.View{}, value.Tombstone, nil
				}
				if ent.value.Empty() {
					return arena.View{}, value.Live, nil
				}
				v, ok := dst.Allocate(ent.value.Len(), arena.DefaultAlignment)
				if !ok {
					return arena.View{}, 0, errors.Wrap(kverrors.ErrArenaAllocFailed, "sstable: value copy")
				}
				copy(v.Bytes(), ent.value.Bytes())
				return v, value.Live, nil
			}
			pos += consumed
		}
		offset += blockHeaderSize + onDiskSize
	}
	return arena.View{}, 0, kverrors.ErrNotFound
}

// loadBlock reads and, if necessary, decompresses the block header at
// offset, returning its decoded payload and the block's on-disk payload
// size (not including the header).
func (r *Reader) loadBlock(offset int) (payload []byte, onDiskSize int, err error) {
	if offset+blockHeaderSize > len(r.data) {
		return nil, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: truncated block header")
	}
	header := r.data[offset : offset+blockHeaderSize]
	uncompressedSize := int(binary.LittleEndian.Uint32(header[0:4]))
	onDiskSize = int(binary.LittleEndian.Uint32(header[4:8]))
	flag := header[8]

	payloadStart := offset + blockHeaderSize
	if payloadStart+onDiskSize > len(r.data) {
		return nil, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: block payload exceeds file bounds")
	}
	raw := r.data[payloadStart : payloadStart+onDiskSize]

	switch flag {
	case compressionNone:
		if uncompressedSize != onDiskSize {
			return nil, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: size mismatch for uncompressed block")
		}
		return raw, onDiskSize, nil
	case compressionZstd:
		if uncompressedSize == 0 {
			return nil, onDiskSize, nil
		}
		if onDiskSize == 0 {
			return nil, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: zstd block missing payload")
		}
		decoded, err := r.dec.DecodeAll(raw, make([]byte, 0, uncompressedSize))
		if err != nil || len(decoded) != uncompressedSize {
			return nil, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: zstd decompression failed")
		}
		return decoded, onDiskSize, nil
	default:
		return nil, 0, errors.Wrap(kverrors.ErrNotSupported, "sstable: unknown compression flag")
	}
}

type parsedEntry struct {
	key   arena.View
	value arena.View
	tag   value.Tag
}

// parseEntry decodes the entry starting at pos within payload, returning
// it along with the number of bytes it occupied.
func parseEntry(payload []byte, pos int) (parsedEntry, int, error) {
	const minEntryHeaders = 4 + 1 + 4
	if pos+minEntryHeaders > len(payload) {
		return parsedEntry{}, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: not enough space for minimal entry header")
	}
	start := pos
	keyLen := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
	pos += 4

	if pos+keyLen > len(payload) {
		return parsedEntry{}, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: key extends beyond block boundary")
	}
	key := payload[pos : pos+keyLen]
	pos += keyLen

	tag := tagFromByte(payload[pos])
	pos++

	if pos+4 > len(payload) {
		return parsedEntry{}, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: cannot read value length")
	}
	valLen := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
	pos += 4
	if tag == value.Tombstone && valLen != 0 {
		return parsedEntry{}, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: tombstone with nonzero value length")
	}

	var val []byte
	if valLen > 0 {
		if pos+valLen > len(payload) {
			return parsedEntry{}, 0, errors.Wrap(kverrors.ErrCorruption, "sstable: value extends beyond block boundary")
		}
		val = payload[pos : pos+valLen]
		pos += valLen
	}

	return parsedEntry{key: arena.NewView(key), value: arena.NewView(val), tag: tag}, pos - start, nil
}
