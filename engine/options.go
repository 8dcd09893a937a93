package engine

import "github.com/klauspost/compress/zstd"

// defaultFlushThresholdBytes mirrors the original's constructor default
// of a few megabytes, small enough to exercise multi-run behavior in
// tests without writing gigabytes of data.
const defaultFlushThresholdBytes = 4 << 20 // 4 MiB

// Options configures a new Engine.
type Options struct {
	// Dir is the directory run files are written to and read from. It
	// is created if it does not already exist.
	Dir string

	// FlushThresholdBytes is the active table's approximate memory
	// usage, in bytes, at or above which a write triggers a flush.
	// Zero means defaultFlushThresholdBytes.
	FlushThresholdBytes uint64

	// TargetBlockBytes is the buffer-size threshold the engine's
	// sstable.Writer uses to decide when to flush a block to disk.
	// Zero means sstable.defaultTargetBlockSize.
	TargetBlockBytes int

	// EnableCompression turns on zstd compression for blocks written by
	// the engine's sstable.Writer.
	EnableCompression bool

	// CompressionLevel is passed through to the zstd encoder when
	// EnableCompression is true. Zero selects zstd.SpeedFastest.
	CompressionLevel zstd.EncoderLevel
}

func (o Options) withDefaults() Options {
	if o.FlushThresholdBytes == 0 {
		o.FlushThresholdBytes = defaultFlushThresholdBytes
	}
	return o
}
