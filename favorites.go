package main

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const favoritesKey = "favorites"

// Favorites is a de-duplicated list of images stored as one JSON array.
// Every mutation reads, modifies and rewrites the whole document under mu,
// so concurrent Add/Remove calls cannot lose each other's updates.
type Favorites struct {
	mu      sync.Mutex
	storage Storage
	key     string
	last    []ImageRecord
	log     *log.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewFavorites(storage Storage, user string, logger *log.Logger, metrics *Metrics) *Favorites {
	return &Favorites{
		storage: storage,
		key:     scopedKey(favoritesKey, user),
		log:     logger.WithPrefix("favorites"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Add appends img unless an entry with the same key exists. It reports
// whether the collection changed.
func (fav *Favorites) Add(ctx context.Context, img ImageRecord) (bool, error) {
	key := img.Key()
	if key == "" {
		return false, errors.New("image has no id or url")
	}
	fav.mu.Lock()
	defer fav.mu.Unlock()

	list, err := fav.load(ctx)
	if err != nil {
		return false, err
	}
	if indexOfKey(list, key) >= 0 {
		return false, nil
	}
	at := fav.now().UTC()
	img.FavoritedAt = &at
	list = append(list, img)
	if err := fav.save(ctx, list); err != nil {
		return false, err
	}
	return true, nil
}

func (fav *Favorites) Remove(ctx context.Context, img ImageRecord) (bool, error) {
	key := img.Key()
	fav.mu.Lock()
	defer fav.mu.Unlock()

	list, err := fav.load(ctx)
	if err != nil {
		return false, err
	}
	idx := indexOfKey(list, key)
	if idx < 0 {
		return false, nil
	}
	list = slices.Delete(list, idx, idx+1)
	if err := fav.save(ctx, list); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the stored collection. On a read failure it returns the last
// collection seen together with the error.
func (fav *Favorites) List(ctx context.Context) ([]ImageRecord, error) {
	fav.mu.Lock()
	defer fav.mu.Unlock()
	list, err := fav.load(ctx)
	if err != nil {
		return slices.Clone(fav.last), err
	}
	return list, nil
}

func (fav *Favorites) Contains(ctx context.Context, img ImageRecord) (bool, error) {
	list, err := fav.List(ctx)
	return indexOfKey(list, img.Key()) >= 0, err
}

func (fav *Favorites) Clear(ctx context.Context) error {
	fav.mu.Lock()
	defer fav.mu.Unlock()
	if err := fav.storage.RemoveItem(ctx, fav.key); err != nil {
		fav.metrics.storageError("favorites_clear")
		fav.log.Error("clearing favorites", "key", fav.key, "err", err)
		return errors.Join(ErrStorageWrite, err)
	}
	fav.last = nil
	return nil
}

func (fav *Favorites) load(ctx context.Context) ([]ImageRecord, error) {
	list := []ImageRecord{}
	if _, err := getJSON(ctx, fav.storage, fav.key, &list); err != nil {
		fav.metrics.storageError("favorites_read")
		fav.log.Error("reading favorites", "key", fav.key, "err", err)
		return nil, err
	}
	fav.last = slices.Clone(list)
	return list, nil
}

func (fav *Favorites) save(ctx context.Context, list []ImageRecord) error {
	if err := setJSON(ctx, fav.storage, fav.key, list); err != nil {
		fav.metrics.storageError("favorites_write")
		fav.log.Error("writing favorites", "key", fav.key, "err", err)
		return err
	}
	fav.last = slices.Clone(list)
	return nil
}

func indexOfKey(list []ImageRecord, key string) int {
	if key == "" {
		return -1
	}
	return slices.IndexFunc(list, func(img ImageRecord) bool { return img.Key() == key })
}
