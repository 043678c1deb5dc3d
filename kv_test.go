package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage is an in-memory Storage whose reads and writes can be made to
// fail.
type memStorage struct {
	mu       sync.Mutex
	items    map[string]string
	failGet  error
	failSet  error
	failRm   error
	getCalls int
}

func newMemStorage() *memStorage {
	return &memStorage{items: map[string]string{}}
}

func (m *memStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.failGet != nil {
		return "", false, m.failGet
	}
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memStorage) SetItem(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.items[key] = value
	return nil
}

func (m *memStorage) RemoveItem(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRm != nil {
		return m.failRm
	}
	delete(m.items, key)
	return nil
}

func (m *memStorage) setFailGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGet = err
}

func storageBackends(t *testing.T) map[string]Storage {
	fs, err := NewFileStorage(filepath.Join(t.TempDir(), "kv"))
	require.NoError(t, err)
	return map[string]Storage{
		"file":   fs,
		"sqlite": newTestStore(t),
	}
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.GetItem(ctx, "favorites/alice")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetItem(ctx, "favorites/alice", `[1]`))
			require.NoError(t, s.SetItem(ctx, "favorites/alice", `[1,2]`))
			v, ok, err := s.GetItem(ctx, "favorites/alice")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[1,2]`, v)

			require.NoError(t, s.RemoveItem(ctx, "favorites/alice"))
			require.NoError(t, s.RemoveItem(ctx, "favorites/alice"))
			_, ok, err = s.GetItem(ctx, "favorites/alice")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoragePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := NewFileStorage(filepath.Join(dir, "kv"))
	require.NoError(t, err)
	require.NoError(t, fs.SetItem(ctx, "settings", `{"autoDownload":true}`))
	fs, err = NewFileStorage(filepath.Join(dir, "kv"))
	require.NoError(t, err)
	v, ok, err := fs.GetItem(ctx, "settings")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"autoDownload":true}`, v)

	dbPath := filepath.Join(dir, "cache.db")
	store, err := NewStore(dbPath, discardLogger())
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, "settings", `{"columns":3}`))
	require.NoError(t, store.Close())
	store, err = NewStore(dbPath, discardLogger())
	require.NoError(t, err)
	defer store.Close()
	v, ok, err = store.GetItem(ctx, "settings")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"columns":3}`, v)
}

func TestNewStorage(t *testing.T) {
	cfg := newConfig()
	cfg.Storage.Dir = t.TempDir()

	cfg.Storage.Backend = "file"
	s, err := NewStorage(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	cfg.Storage.Backend = "sqlite"
	_, err = NewStorage(cfg, nil)
	assert.Error(t, err)
	store := newTestStore(t)
	s, err = NewStorage(cfg, store)
	require.NoError(t, err)
	assert.Same(t, store, s)

	cfg.Storage.Backend = "redis"
	_, err = NewStorage(cfg, store)
	assert.Error(t, err)
}

func TestGetJSONWrapsErrors(t *testing.T) {
	ctx := context.Background()
	m := newMemStorage()
	var out []int

	m.items["bad"] = "{not json"
	_, err := getJSON(ctx, m, "bad", &out)
	assert.ErrorIs(t, err, ErrStorageRead)

	m.setFailGet(errors.New("disk gone"))
	_, err = getJSON(ctx, m, "any", &out)
	assert.ErrorIs(t, err, ErrStorageRead)

	m.failSet = errors.New("disk full")
	assert.ErrorIs(t, setJSON(ctx, m, "any", []int{1}), ErrStorageWrite)
}

func TestScopedKey(t *testing.T) {
	assert.Equal(t, "favorites", scopedKey("favorites", ""))
	assert.Equal(t, "favorites/alice", scopedKey("favorites", "alice"))
}
