package disktier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func decodeString(raw []byte) (string, error) {
	return string(raw), nil
}

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("", Options{})
	require.Error(t, err)

	_, err = Open("   ", Options{})
	require.Error(t, err)
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, "greeting", []byte("hello"), 0))

	got, found, err := Get(ctx, s, "greeting", decodeString)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello", got)
}

func TestStore_MissOnAbsentKey(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	_, found, err := Get(ctx, s, "missing", decodeString)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, "k", []byte("one"), 0))
	require.NoError(t, s.Put(ctx, "k", []byte("two"), 0))

	got, found, err := Get(ctx, s, "k", decodeString)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "two", got)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ExpiredEntryIsMissAndDeleted(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := openTestStore(t, Options{Clock: clock.Now})

	require.NoError(t, s.Put(ctx, "k", []byte("v"), 100*time.Millisecond))

	clock.Advance(150 * time.Millisecond)

	_, found, err := Get(ctx, s, "k", decodeString)
	require.NoError(t, err)
	assert.False(t, found)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "expired row should be deleted on read")
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := openTestStore(t, Options{Clock: clock.Now})

	require.NoError(t, s.Put(ctx, "k", []byte("v"), 0))
	clock.Advance(24 * time.Hour)

	_, found, err := Get(ctx, s, "k", decodeString)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStore_UndecodableEntryIsMissAndDeleted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, "k", []byte("not json"), 0))

	type payload struct {
		Name string `json:"name"`
	}
	_, found, err := Get(ctx, s, "k", func(raw []byte) (payload, error) {
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return payload{}, err
		}
		return p, nil
	})
	require.NoError(t, err)
	assert.False(t, found)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", []byte("survives"), 0))
	require.NoError(t, s.Close())

	s, err = Open(path, Options{})
	require.NoError(t, err)
	defer s.Close()

	got, found, err := Get(ctx, s, "k", decodeString)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "survives", got)
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := openTestStore(t, Options{MaxEntries: 3, Clock: clock.Now})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("key-%d", i), []byte("v"), 0))
		clock.Advance(time.Second)
	}

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for i := 0; i < 2; i++ {
		_, found, err := Get(ctx, s, fmt.Sprintf("key-%d", i), decodeString)
		require.NoError(t, err)
		assert.False(t, found, "oldest entries should have been evicted")
	}
	for i := 2; i < 5; i++ {
		_, found, err := Get(ctx, s, fmt.Sprintf("key-%d", i), decodeString)
		require.NoError(t, err)
		assert.True(t, found)
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, Options{})

	require.NoError(t, s.Put(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), 0))

	deleted, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.Clear(ctx))
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_RecreatesCorruptedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite file"), 0o600))

	s, err := Open(path, Options{})
	require.NoError(t, err, "corrupted file should be wiped and recreated")
	defer s.Close()

	ctx := context.Background()
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.Put(ctx, "k", []byte("v"), 0))
	_, found, err := Get(ctx, s, "k", decodeString)
	require.NoError(t, err)
	assert.True(t, found)
}
