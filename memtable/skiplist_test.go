package memtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmstore/lsmstore/arena"
	"github.com/lsmstore/lsmstore/internal/kverrors"
	"github.com/lsmstore/lsmstore/value"
)

func newTestTable() *SkipList {
	return New(arena.New())
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s := newTestTable()
	require.NoError(t, s.Put([]byte("foo"), []byte("bar")))

	v, tag, err := s.Get([]byte("foo"))
	require.NoError(t, err)
	require.Equal(t, value.Live, tag)
	require.Equal(t, "bar", v.String())
}

func TestGetOnMissingKeyReturnsNotFound(t *testing.T) {
	s := newTestTable()
	require.NoError(t, s.Put([]byte("foo"), []byte("bar")))

	_, _, err := s.Get([]byte("nope"))
	require.ErrorIs(t, err, kverrors.ErrNotFound)
}

func TestPutOnExistingKeyIsLastWriteWins(t *testing.T) {
	s := newTestTable()
	require.NoError(t, s.Put([]byte("k"), []byte("v1")))
	require.NoError(t, s.Put([]byte("k"), []byte("v2")))

	v, tag, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, value.Live, tag)
	require.Equal(t, "v2", v.String())
}

func TestDeleteLeavesATombstoneNotANotFound(t *testing.T) {
	s := newTestTable()
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Delete([]byte("k")))

	v, tag, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, value.Tombstone, tag)
	require.True(t, v.Empty())
}

func TestDeleteOnMissingKeyStillInsertsATombstone(t *testing.T) {
	s := newTestTable()
	require.NoError(t, s.Delete([]byte("ghost")))

	_, tag, err := s.Get([]byte("ghost"))
	require.NoError(t, err)
	require.Equal(t, value.Tombstone, tag)
}

func TestPutRejectsEmptyKey(t *testing.T) {
	s := newTestTable()
	err := s.Put([]byte(""), []byte("v"))
	require.ErrorIs(t, err, kverrors.ErrInvalidArgument)
}

func TestPutAcceptsEmptyValue(t *testing.T) {
	s := newTestTable()
	require.NoError(t, s.Put([]byte("k"), []byte{}))

	v, tag, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, value.Live, tag)
	require.True(t, v.Empty())
}

func TestCursorWalksInAscendingKeyOrder(t *testing.T) {
	s := newTestTable()
	keys := []string{"delta", "alpha", "charlie", "bravo"}
	for _, k := range keys {
		require.NoError(t, s.Put([]byte(k), []byte(k+"-value")))
	}

	c := s.NewCursor()
	c.SeekFirst()

	var got []string
	for c.Valid() {
		got = append(got, c.Key().String())
		c.Next()
	}
	require.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, got)
}

func TestCursorSeekFindsLowerBound(t *testing.T) {
	s := newTestTable()
	for _, k := range []string{"a", "c", "e", "g"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	c := s.NewCursor()
	c.Seek([]byte("d"))
	require.True(t, c.Valid())
	require.Equal(t, "e", c.Key().String())

	c.Seek([]byte("z"))
	require.False(t, c.Valid())
}

func TestCursorEntryReportsTombstones(t *testing.T) {
	s := newTestTable()
	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Delete([]byte("b")))

	c := s.NewCursor()
	c.SeekFirst()
	_, tag := c.Entry()
	require.Equal(t, value.Live, tag)
	c.Next()
	_, tag = c.Entry()
	require.Equal(t, value.Tombstone, tag)
}

func TestApproximateMemoryUsageGrowsWithWrites(t *testing.T) {
	s := newTestTable()
	before := s.ApproximateMemoryUsage()
	require.NoError(t, s.Put([]byte("some-key"), []byte("some-value")))
	require.Greater(t, s.ApproximateMemoryUsage(), before)
}

func TestManyKeysStayOrderedUnderSkipListPromotion(t *testing.T) {
	s := newTestTable()
	const n = 500
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}

	c := s.NewCursor()
	c.SeekFirst()
	count := 0
	prev := ""
	for c.Valid() {
		k := c.Key().String()
		require.True(t, prev < k || count == 0)
		prev = k
		count++
		c.Next()
	}
	require.Equal(t, n, count)
}
