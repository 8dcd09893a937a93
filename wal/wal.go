// Package wal implements a write-ahead log record format and a
// sequential writer/reader for it, mirroring the shape of a durability
// layer a store like this one would eventually need.
//
// Nothing in the engine package imports this package: the original
// system this store is modeled on declared a WAL interface without
// ever wiring it into the live write path, and this port preserves that
// gap rather than papering over it with an integration that was never
// part of the design.
package wal

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lsmstore/lsmstore/internal/kverrors"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// RecordType distinguishes a put record from a delete record in the log.
type RecordType byte

const (
	RecordPut RecordType = iota
	RecordDelete
)

// Record is one write-ahead log entry: a single Put or Delete.
type Record struct {
	Type  RecordType
	Key   []byte
	Value []byte // unused (nil) for RecordDelete
}

// Writer appends records to a log file. It buffers writes and does not
// fsync automatically; call Sync to force durability at a point of the
// caller's choosing.
type Writer struct {
	f   *os.File
	buf *bufio.Writer
}

// Create opens path for appending, creating it if necessary.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "wal: failed to open log file %s", path)
	}
	return &Writer{f: f, buf: bufio.NewWriter(f)}, nil
}

// Append encodes rec as:
//
//	record_type u8
//	key_len     varint
//	value_len   varint (0 for a delete record)
//	key         key_len bytes
//	value       value_len bytes
//	crc32       u32 LE, Castagnoli, over every byte above
//
// and writes it to the buffered stream.
func (w *Writer) Append(rec Record) error {
	if len(rec.Key) == 0 {
		return errors.Wrap(kverrors.ErrInvalidArgument, "wal: empty key")
	}

	var header [1 + binary.MaxVarintLen64*2]byte
	header[0] = byte(rec.Type)
	n := 1
	n += binary.PutUvarint(header[n:], uint64(len(rec.Key)))
	valueLen := 0
	if rec.Type == RecordPut {
		valueLen = len(rec.Value)
	}
	n += binary.PutUvarint(header[n:], uint64(valueLen))

	crc := crc32.New(castagnoliTable)
	mw := io.MultiWriter(w.buf, crc)

	if _, err := mw.Write(header[:n]); err != nil {
		return errors.Wrap(err, "wal: failed to write record header")
	}
	if _, err := mw.Write(rec.Key); err != nil {
		return errors.Wrap(err, "wal: failed to write record key")
	}
	if valueLen > 0 {
		if _, err := mw.Write(rec.Value); err != nil {
			return errors.Wrap(err, "wal: failed to write record value")
		}
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum32())
	if _, err := w.buf.Write(trailer[:]); err != nil {
		return errors.Wrap(err, "wal: failed to write record checksum")
	}
	return nil
}

// Sync flushes buffered writes to the file and fsyncs it.
func (w *Writer) Sync() error {
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, "wal: failed to flush log buffer")
	}
	return errors.Wrap(w.f.Sync(), "wal: failed to fsync log file")
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return errors.Wrap(err, "wal: failed to flush log buffer on close")
	}
	return w.f.Close()
}

// Reader sequentially decodes records previously written by a Writer.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

// Open opens path for sequential reading from the beginning.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "wal: failed to open log file %s", path)
	}
	return &Reader{f: f, r: bufio.NewReader(f)}, nil
}

// Next decodes the next record. It returns io.EOF once the log has been
// fully consumed, and kverrors.ErrCorruption if a checksum fails to
// verify or the stream ends mid-record.
func (r *Reader) Next() (Record, error) {
	crc := crc32.New(castagnoliTable)

	recTypeByte, err := r.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, errors.Wrap(err, "wal: failed to read record type")
	}
	if _, err := crc.Write([]byte{recTypeByte}); err != nil {
		return Record{}, errors.Wrap(err, "wal: failed to update checksum")
	}

	keyLen, err := readUvarintChecked(r.r, crc)
	if err != nil {
		return Record{}, err
	}
	valueLen, err := readUvarintChecked(r.r, crc)
	if err != nil {
		return Record{}, err
	}

	key := make([]byte, keyLen)
	if err := readFullChecked(r.r, crc, key); err != nil {
		return Record{}, err
	}

	var val []byte
	if valueLen > 0 {
		val = make([]byte, valueLen)
		if err := readFullChecked(r.r, crc, val); err != nil {
			return Record{}, err
		}
	}

	var trailer [4]byte
	if _, err := io.ReadFull(r.r, trailer[:]); err != nil {
		return Record{}, errors.Wrap(kverrors.ErrCorruption, "wal: truncated checksum trailer")
	}
	if binary.LittleEndian.Uint32(trailer[:]) != crc.Sum32() {
		return Record{}, errors.Wrap(kverrors.ErrCorruption, "wal: checksum mismatch")
	}

	return Record{Type: RecordType(recTypeByte), Key: key, Value: val}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

func readUvarintChecked(r *bufio.Reader, crc io.Writer) (uint64, error) {
	v, err := binary.ReadUvarint(&crcTrackingByteReader{r: r, crc: crc})
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, errors.Wrap(kverrors.ErrCorruption, "wal: truncated varint")
		}
		return 0, errors.Wrap(err, "wal: failed to read varint")
	}
	return v, nil
}

func readFullChecked(r *bufio.Reader, crc io.Writer, dst []byte) error {
	if _, err := io.ReadFull(r, dst); err != nil {
		return errors.Wrap(kverrors.ErrCorruption, "wal: truncated record body")
	}
	if _, err := crc.Write(dst); err != nil {
		return errors.Wrap(err, "wal: failed to update checksum")
	}
	return nil
}

// crcTrackingByteReader adapts a bufio.Reader to io.ByteReader while
// feeding every byte read into crc, so binary.ReadUvarint's
// byte-at-a-time protocol still contributes to the record checksum.
type crcTrackingByteReader struct {
	r   *bufio.Reader
	crc io.Writer
}

func (c *crcTrackingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if _, err := c.crc.Write([]byte{b}); err != nil {
		return 0, err
	}
	return b, nil
}
