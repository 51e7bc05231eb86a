package outputstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendAndRead(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Shutdown() }()

	require.NoError(t, store.Append("p1", Stdout, "a", "bb", "ccc"))

	entries, err := store.Read("p1", Stdout, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a", entries[0].Text)
	require.Equal(t, "bb", entries[1].Text)
	require.Equal(t, "ccc", entries[2].Text)
}

func TestReadTimestampsNonDecreasing(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Shutdown() }()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append("p1", Stdout, "line"))
		time.Sleep(time.Microsecond)
	}

	entries, err := store.Read("p1", Stdout, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		require.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func TestReadTail(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Shutdown() }()

	require.NoError(t, store.Append("p1", Stdout, "a", "bb", "ccc", "dd", "eee"))

	entries, err := store.Read("p1", Stdout, ReadOptions{Tail: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []string{"ccc", "dd", "eee"}, texts(entries))
}

func TestReadSinceUntil(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Shutdown() }()

	require.NoError(t, store.Append("p1", Stdout, "a"))
	mid := time.Now()
	time.Sleep(time.Millisecond)
	require.NoError(t, store.Append("p1", Stdout, "b"))

	entries, err := store.Read("p1", Stdout, ReadOptions{Since: &mid})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Text)

	entries, err = store.Read("p1", Stdout, ReadOptions{Until: &mid})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a", entries[0].Text)
}

func TestReadUnknownProcess(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Shutdown() }()

	_, err = store.Read("missing", Stdout, ReadOptions{})
	require.Error(t, err)
}

func TestClearRemovesBothChannels(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Shutdown() }()

	require.NoError(t, store.Append("p1", Stdout, "out"))
	require.NoError(t, store.Append("p1", Stderr, "err"))

	require.NoError(t, store.Clear("p1"))

	_, err = store.Read("p1", Stdout, ReadOptions{})
	require.Error(t, err)
	_, err = store.Read("p1", Stderr, ReadOptions{})
	require.Error(t, err)
}

func TestClearUnknownFails(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Shutdown() }()

	require.Error(t, store.Clear("missing"))
}

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}
