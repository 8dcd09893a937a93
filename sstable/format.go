// Package sstable implements the on-disk sorted run format: an
// immutable file holding one flushed table's entries in key order,
// grouped into independently compressed blocks.
//
// A run file is a flat sequence of blocks, each:
//
//	uncompressed_size u32 LE
//	on_disk_size      u32 LE
//	compression_flag  u8
//	payload           on_disk_size bytes
//
// A block's decompressed payload is itself a sequence of entries:
//
//	key_len   u32 LE
//	key       key_len bytes
//	tag       u8
//	value_len u32 LE
//	value     value_len bytes (omitted entirely when tag is Tombstone)
//
// There is no file-level header, footer, index, or checksum: finding a
// key means scanning blocks front to back and entries within a block
// front to back.
package sstable

import "github.com/lsmstore/lsmstore/value"

const (
	compressionNone byte = 0x00
	compressionZstd byte = 0x01
)

// blockHeaderSize is the fixed 9-byte header preceding every block's
// payload: two u32 length fields plus the one-byte compression flag.
const blockHeaderSize = 4 + 4 + 1

// defaultTargetBlockSize is the buffer threshold a Writer checks after
// appending each entry; it is a soft target, not a hard cap, since a
// single oversized entry is still written whole.
const defaultTargetBlockSize = 4096

func tagByte(t value.Tag) byte { return byte(t) }

func tagFromByte(b byte) value.Tag { return value.Tag(b) }
