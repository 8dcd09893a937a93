package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/internal/kverrors"
)

func openTestEngine(t *testing.T, threshold uint64) *Engine {
	e, err := Open(Options{
		Dir:                 t.TempDir(),
		FlushThresholdBytes: threshold,
		EnableCompression:   false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func get(t *testing.T, e *Engine, key string) (string, error) {
	t.Helper()
	dst := arena.New()
	v, err := e.Get([]byte(key), dst)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func TestPutThenGetWithoutAnyFlush(t *testing.T) {
	e := openTestEngine(t, 1<<20)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))

	v, err := get(t, e, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestGetOnNeverWrittenKeyIsNotFound(t *testing.T) {
	e := openTestEngine(t, 1<<20)
	_, err := get(t, e, "ghost")
	require.ErrorIs(t, err, kverrors.ErrNotFound)
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	e := openTestEngine(t, 1<<20)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Delete([]byte("k")))

	_, err := get(t, e, "k")
	require.ErrorIs(t, err, kverrors.ErrNotFound)
}

func TestWriteCrossingThresholdProducesARunFile(t *testing.T) {
	e := openTestEngine(t, 64)
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key-%02d", i)
		require.NoError(t, e.Put([]byte(k), []byte("some reasonably sized value")))
	}
	require.NotEmpty(t, e.runs, "expected at least one flush to have produced a run file")

	v, err := get(t, e, "key-00")
	require.NoError(t, err)
	require.Equal(t, "some reasonably sized value", v)
}

func TestRunFileNamingIsZeroPaddedAndSequential(t *testing.T) {
	e := openTestEngine(t, 1) // flush after every write
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))

	require.Len(t, e.runs, 2)
	require.Equal(t, filepath.Join(e.opts.Dir, "000002.sst"), e.runs[0].Path())
	require.Equal(t, filepath.Join(e.opts.Dir, "000001.sst"), e.runs[1].Path())
}

func TestNewerRunShadowsOlderRunForSameKey(t *testing.T) {
	e := openTestEngine(t, 1) // flush after every write, one key per run
	require.NoError(t, e.Put([]byte("k"), []byte("old")))
	require.NoError(t, e.Put([]byte("k"), []byte("new")))

	v, err := get(t, e, "k")
	require.NoError(t, err)
	require.Equal(t, "new", v)
}

func TestDeleteAfterFlushShadowsOlderRunValue(t *testing.T) {
	e := openTestEngine(t, 1)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Delete([]byte("k")))

	_, err := get(t, e, "k")
	require.ErrorIs(t, err, kverrors.ErrNotFound)
}

func TestActiveTableValueShadowsOlderRunValue(t *testing.T) {
	e := openTestEngine(t, 1<<20)
	require.NoError(t, e.Put([]byte("k"), []byte("first")))
	require.NoError(t, e.flush())
	require.NoError(t, e.Put([]byte("k"), []byte("second")))

	v, err := get(t, e, "k")
	require.NoError(t, err)
	require.Equal(t, "second", v)
}

func TestTargetBlockBytesThreadsThroughToRunFile(t *testing.T) {
	e, err := Open(Options{
		Dir:                 t.TempDir(),
		FlushThresholdBytes: 1 << 20,
		TargetBlockBytes:    16,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key-%02d", i)
		require.NoError(t, e.Put([]byte(k), []byte("some reasonably sized value")))
	}
	require.NoError(t, e.flush())
	require.Len(t, e.runs, 1)

	info, err := os.Stat(e.runs[0].Path())
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	v, err := get(t, e, "key-00")
	require.NoError(t, err)
	require.Equal(t, "some reasonably sized value", v)
}

func TestCloseIsIdempotent(t *testing.T) {
	e, err := Open(Options{Dir: t.TempDir(), FlushThresholdBytes: 1})
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NotEmpty(t, e.runs)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestEmptyActiveTableFlushProducesNoRunFile(t *testing.T) {
	e := openTestEngine(t, 1<<20)
	require.NoError(t, e.flush())
	require.Empty(t, e.runs)
}

func TestManyKeysSurviveMultipleFlushesInOrder(t *testing.T) {
	e := openTestEngine(t, 256)
	const n = 300
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("item-%04d", i)
		require.NoError(t, e.Put([]byte(k), []byte(k)))
	}
	require.Greater(t, len(e.runs), 1, "expected several run files across this many writes")

	for i := 0; i < n; i++ {
		k := fmt.Sprintf("item-%04d", i)
		v, err := get(t, e, k)
		require.NoError(t, err, "key %s", k)
		require.Equal(t, k, v)
	}
}
