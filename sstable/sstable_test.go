package sstable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/internal/kverrors"
	"github.com/lsmstore/lsmstore/memtable"
	"github.com/lsmstore/lsmstore/value"
)

func buildTable(t *testing.T, entries map[string]string, deleted ...string) memtable.Table {
	s := memtable.New(arena.New())
	for k, v := range entries {
		require.NoError(t, s.Put([]byte(k), []byte(v)))
	}
	for _, k := range deleted {
		require.NoError(t, s.Delete([]byte(k)))
	}
	return s
}

func writeTable(t *testing.T, table memtable.Table, opts WriterOptions) string {
	w, err := NewWriter(opts)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(t.TempDir(), "000001.sst")
	require.NoError(t, w.WriteTable(table, path))
	return path
}

func TestWriteThenReadRoundTripsAllEntries(t *testing.T) {
	entries := map[string]string{
		"alpha":   "1",
		"bravo":   "2",
		"charlie": "3",
	}
	table := buildTable(t, entries, "bravo")
	path := writeTable(t, table, WriterOptions{EnableCompression: false})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	dst := arena.New()

	v, tag, err := r.Get([]byte("alpha"), dst)
	require.NoError(t, err)
	require.Equal(t, value.Live, tag)
	require.Equal(t, "1", v.String())

	_, tag, err = r.Get([]byte("bravo"), dst)
	require.NoError(t, err)
	require.Equal(t, value.Tombstone, tag)

	v, tag, err = r.Get([]byte("charlie"), dst)
	require.NoError(t, err)
	require.Equal(t, value.Live, tag)
	require.Equal(t, "3", v.String())

	_, _, err = r.Get([]byte("nonexistent"), dst)
	require.ErrorIs(t, err, kverrors.ErrNotFound)
}

func TestCursorWalksEntriesInAscendingKeyOrder(t *testing.T) {
	table := buildTable(t, map[string]string{
		"delta":   "d",
		"alpha":   "a",
		"charlie": "c",
		"bravo":   "b",
	})
	path := writeTable(t, table, WriterOptions{EnableCompression: false, TargetBlockSize: 16})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	c := r.NewCursor()
	c.SeekFirst()

	var keys []string
	for c.Valid() {
		keys = append(keys, c.Key().String())
		c.Next()
	}
	require.NoError(t, c.Status())
	require.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, keys)
}

func TestTombstoneEntryCarriesNoValueBytes(t *testing.T) {
	table := buildTable(t, nil, "gone")
	path := writeTable(t, table, WriterOptions{EnableCompression: false})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	c := r.NewCursor()
	c.SeekFirst()
	require.True(t, c.Valid())
	v, tag := c.Entry()
	require.Equal(t, value.Tombstone, tag)
	require.True(t, v.Empty())
}

func TestCompressedRunRoundTripsIdenticallyToUncompressed(t *testing.T) {
	entries := make(map[string]string)
	for i := 0; i < 200; i++ {
		k := "repeated-key-prefix-" + string(rune('a'+i%26))
		entries[k] = "a value that repeats enough to compress well, padding padding"
	}
	table := buildTable(t, entries)
	path := writeTable(t, table, WriterOptions{EnableCompression: true, TargetBlockSize: 512})

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	dst := arena.New()
	for k, want := range entries {
		v, tag, err := r.Get([]byte(k), dst)
		require.NoError(t, err)
		require.Equal(t, value.Live, tag)
		require.Equal(t, want, v.String())
	}
}

func TestSmallIncompressibleBlockFallsBackToUncompressed(t *testing.T) {
	table := buildTable(t, map[string]string{"k": "v"})
	path := writeTable(t, table, WriterOptions{EnableCompression: true})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), blockHeaderSize)
	require.Equal(t, compressionNone, data[8])
}

func TestEmptyTableProducesAnEmptyRunFile(t *testing.T) {
	table := buildTable(t, nil)
	path := writeTable(t, table, WriterOptions{EnableCompression: false})

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Size())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	c := r.NewCursor()
	c.SeekFirst()
	require.False(t, c.Valid())
	require.NoError(t, c.Status())
}
