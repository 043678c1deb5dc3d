package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavoritesAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fav := NewFavorites(newMemStorage(), "", discardLogger(), nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fav.now = func() time.Time { return fixed }

	img := ImageRecord{Id: "pixabay/1", DisplayUrl: "https://img.example/1.jpg", Likes: 3}
	added, err := fav.Add(ctx, img)
	require.NoError(t, err)
	assert.True(t, added)

	// likes changed between fetches; still the same image
	img.Likes = 10
	added, err = fav.Add(ctx, img)
	require.NoError(t, err)
	assert.False(t, added)

	list, err := fav.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Likes)
	require.NotNil(t, list[0].FavoritedAt)
	assert.True(t, fixed.Equal(*list[0].FavoritedAt))
}

func TestFavoritesRemoveAndContains(t *testing.T) {
	ctx := context.Background()
	fav := NewFavorites(newMemStorage(), "", discardLogger(), nil)
	a := ImageRecord{Id: "a"}
	b := ImageRecord{DisplayUrl: "https://img.example/b.jpg"}

	fav.Add(ctx, a)
	fav.Add(ctx, b)

	ok, err := fav.Contains(ctx, ImageRecord{DisplayUrl: "https://img.example/b.jpg"})
	require.NoError(t, err)
	assert.True(t, ok, "records without an id match on display url")

	removed, err := fav.Remove(ctx, a)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = fav.Remove(ctx, a)
	require.NoError(t, err)
	assert.False(t, removed)

	ok, _ = fav.Contains(ctx, a)
	assert.False(t, ok)
	list, _ := fav.List(ctx)
	assert.Len(t, list, 1)
}

func TestFavoritesRejectsKeylessImage(t *testing.T) {
	fav := NewFavorites(newMemStorage(), "", discardLogger(), nil)
	_, err := fav.Add(context.Background(), ImageRecord{Author: "nobody"})
	assert.Error(t, err)
}

func TestFavoritesClear(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	fav := NewFavorites(storage, "", discardLogger(), nil)
	fav.Add(ctx, ImageRecord{Id: "a"})

	require.NoError(t, fav.Clear(ctx))
	list, err := fav.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	storage.failRm = errors.New("read-only")
	assert.ErrorIs(t, fav.Clear(ctx), ErrStorageWrite)
}

func TestFavoritesConcurrentAddsAreKept(t *testing.T) {
	ctx := context.Background()
	fav := NewFavorites(newMemStorage(), "", discardLogger(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fav.Add(ctx, ImageRecord{Id: fmt.Sprintf("img-%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := fav.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestFavoritesReadFailureReturnsLastList(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	fav := NewFavorites(storage, "", discardLogger(), nil)
	fav.Add(ctx, ImageRecord{Id: "a"})
	fav.Add(ctx, ImageRecord{Id: "b"})

	storage.setFailGet(errors.New("io error"))
	list, err := fav.List(ctx)

	assert.ErrorIs(t, err, ErrStorageRead)
	assert.Len(t, list, 2)

	_, err = fav.Add(ctx, ImageRecord{Id: "c"})
	assert.ErrorIs(t, err, ErrStorageRead)
}

func TestFavoritesAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	storage := newMemStorage()
	alice := NewFavorites(storage, "alice", discardLogger(), nil)
	bob := NewFavorites(storage, "bob", discardLogger(), nil)

	alice.Add(ctx, ImageRecord{Id: "a"})

	list, err := bob.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Contains(t, storage.items, "favorites/alice")
}

func TestFavoritesOnSqliteStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	NewFavorites(store, "", discardLogger(), nil).Add(ctx, ImageRecord{Id: "a", Width: 640, Height: 480})

	list, err := NewFavorites(store, "", discardLogger(), nil).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 640, list[0].Width)
}
