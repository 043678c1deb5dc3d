package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Storage is a flat string key-value store holding whole JSON documents.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// NewStorage picks the backend named in the config. The sqlite backend shares
// the request cache database.
func NewStorage(cfg *Config, store *Store) (Storage, error) {
	switch cfg.Storage.Backend {
	case "file":
		return NewFileStorage(cfg.Storage.Dir)
	case "sqlite":
		if store == nil {
			return nil, errors.New("sqlite storage needs an open store")
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// FileStorage keeps one file per key, replaced atomically on every write.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (fs *FileStorage) path(key string) string {
	return filepath.Join(fs.dir, url.QueryEscape(key)+".json")
}

func (fs *FileStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (fs *FileStorage) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(fs.dir, ".kv-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fs.path(key))
}

func (fs *FileStorage) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// getJSON decodes the document under key into out. It reports false when
// the key is absent.
func getJSON(ctx context.Context, s Storage, key string, out any) (bool, error) {
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrStorageRead, key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrStorageRead, key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, s Storage, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageWrite, key, err)
	}
	if err := s.SetItem(ctx, key, string(data)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStorageWrite, key, err)
	}
	return nil
}

// scopedKey namespaces a document per user; the anonymous scope uses the
// bare key.
func scopedKey(base, user string) string {
	if user == "" {
		return base
	}
	return base + "/" + user
}
