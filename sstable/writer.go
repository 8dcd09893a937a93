package sstable

import (
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/lsmstore/lsmstore/memtable"
	"github.com/lsmstore/lsmstore/value"
)

// WriterOptions configures a Writer. The zero value disables compression
// and uses the default target block size.
type WriterOptions struct {
	// EnableCompression, when true, tries to zstd-compress each block
	// before writing it, falling back to the uncompressed payload
	// whenever compression doesn't shrink it (or errors).
	EnableCompression bool

	// CompressionLevel is passed to the zstd encoder. Zero selects
	// zstd.SpeedFastest.
	CompressionLevel zstd.EncoderLevel

	// TargetBlockSize is the buffer-size threshold a Writer checks after
	// every appended entry to decide whether to flush the current
	// block. Zero means defaultTargetBlockSize.
	TargetBlockSize int
}

// Writer serializes a memtable.Table's entries into a single run file in
// ascending key order, one block at a time.
type Writer struct {
	opts WriterOptions
	enc  *zstd.Encoder
}

// NewWriter builds a Writer. When opts.EnableCompression is true, it
// eagerly constructs the zstd encoder so a construction-time failure
// surfaces before any table is written, mirroring the original's
// Init()-before-WriteMemTableToFile two-step contract collapsed into
// one call, which fits Go's no-separate-Init idiom better.
func NewWriter(opts WriterOptions) (*Writer, error) {
	if opts.TargetBlockSize <= 0 {
		opts.TargetBlockSize = defaultTargetBlockSize
	}
	w := &Writer{opts: opts}
	if opts.EnableCompression {
		levelOpt := zstd.WithEncoderLevel(zstd.SpeedFastest)
		if opts.CompressionLevel != 0 {
			levelOpt = zstd.WithEncoderLevel(opts.CompressionLevel)
		}
		enc, err := zstd.NewWriter(nil, levelOpt)
		if err != nil {
			return nil, errors.Wrap(err, "sstable: failed to create zstd encoder")
		}
		w.enc = enc
	}
	return w, nil
}

// WriteTable writes every entry reachable from table's cursor, in
// ascending key order, to a freshly created file at path. An existing
// file at path is truncated.
func (w *Writer) WriteTable(table memtable.Table, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "sstable: failed to create run file %s", path)
	}
	defer f.Close()

	cur := table.NewCursor()
	cur.SeekFirst()

	var block []byte
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if err := w.writeBlock(f, block); err != nil {
			return err
		}
		block = block[:0]
		return nil
	}

	for cur.Valid() {
		key := cur.Key()
		val, tag := cur.Entry()

		block = appendUint32(block, uint32(key.Len()))
		block = append(block, key.Bytes()...)
		block = append(block, tagByte(tag))
		if tag == value.Live {
			block = appendUint32(block, uint32(val.Len()))
			block = append(block, val.Bytes()...)
		} else {
			block = appendUint32(block, 0)
		}

		cur.Next()

		if len(block) >= w.opts.TargetBlockSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "sstable: failed to sync run file %s", path)
	}
	return nil
}

// writeBlock compresses payload if enabled and beneficial, then writes
// the 9-byte header followed by the chosen payload.
func (w *Writer) writeBlock(f *os.File, payload []byte) error {
	uncompressedSize := uint32(len(payload))
	onDisk := payload
	flag := compressionNone

	if w.enc != nil {
		compressed := w.enc.EncodeAll(payload, nil)
		if len(compressed) < len(payload) {
			onDisk = compressed
			flag = compressionZstd
		}
	}

	header := make([]byte, blockHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], uncompressedSize)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(onDisk)))
	header[8] = flag

	if _, err := f.Write(header); err != nil {
		return errors.Wrap(err, "sstable: failed to write block header")
	}
	if len(onDisk) > 0 {
		if _, err := f.Write(onDisk); err != nil {
			return errors.Wrap(err, "sstable: failed to write block payload")
		}
	}
	return nil
}

// Close releases the writer's zstd encoder. A Writer may be reused for
// further WriteTable calls until Close is called.
func (w *Writer) Close() error {
	if w.enc != nil {
		w.enc.Close()
	}
	return nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
