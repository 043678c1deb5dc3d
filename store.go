package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/apibillme/cache"
	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

// Store owns the SQLite file: cached upstream responses, API users and the
// key-value documents behind favorites and settings.
type Store struct {
	db        *sql.DB
	log       *log.Logger
	userCache cache.Cache
}

const reqTable string = `
  CREATE TABLE IF NOT EXISTS reqdata (
      httpdata BLOB NOT NULL,
      hash TEXT NOT NULL,
      expiry INT NOT NULL
  );
  CREATE INDEX IF NOT EXISTS reqdata_hash ON reqdata (hash)
`

const userTable string = `
  CREATE TABLE IF NOT EXISTS users (
      user TEXT NOT NULL PRIMARY KEY,
      hash TEXT NOT NULL,
      level INT NOT NULL
  )
`

const kvTable string = `
  CREATE TABLE IF NOT EXISTS kv (
      key TEXT NOT NULL PRIMARY KEY,
      value TEXT NOT NULL,
      updated INT NOT NULL
  )
`

func NewStore(filename string, logger *log.Logger) (*Store, error) {
	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+filename+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps sqlite from answering "database is locked".
	db.SetMaxOpenConns(1)

	for _, schema := range []string{reqTable, userTable, kvTable} {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{
		db:        db,
		log:       logger.WithPrefix("store"),
		userCache: cache.New(256, cache.WithTTL(1*time.Hour)),
	}, nil
}

func (store *Store) Close() error {
	return store.db.Close()
}

func (store *Store) DeleteBefore(expiry int64) (int64, error) {
	res, err := store.db.Exec("DELETE FROM reqdata WHERE expiry < ?", expiry)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (store *Store) GetResponse(hash string, now int64) ([]byte, bool) {
	row := store.db.QueryRow("SELECT httpdata FROM reqdata WHERE hash = ? AND expiry >= ? ORDER BY expiry DESC LIMIT 1", hash, now)
	var data []byte
	err := row.Scan(&data)
	if err == nil {
		return data, true
	}
	if !errors.Is(err, sql.ErrNoRows) {
		store.log.Error("reading cached response", "err", err)
	}
	return nil, false
}

func (store *Store) StoreResponse(hash string, res []byte, expiry int64) error {
	_, err := store.db.Exec("INSERT INTO reqdata VALUES (?,?,?)",
		res,
		hash,
		expiry,
	)
	return err
}

func (store *Store) AddUser(user string, pass string, level int) error {
	hash, err := argon2id.CreateHash(pass, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = store.db.Exec(
		"INSERT INTO users (user, hash, level) VALUES (?,?,?) ON CONFLICT(user) DO UPDATE SET hash = excluded.hash, level = excluded.level",
		user, hash, level,
	)
	return err
}

func (store *Store) TestUser(user string, pass string) bool {
	userPass, ok := store.userCache.Get(user)
	if ok && 1 == subtle.ConstantTimeCompare([]byte(userPass.(string)), []byte(pass)) {
		return true
	}
	row := store.db.QueryRow("SELECT hash FROM users WHERE user = ?", user)
	var hash string
	err := row.Scan(&hash)
	if err == nil {
		match, err := argon2id.ComparePasswordAndHash(pass, hash)
		if err != nil {
			store.log.Error("comparing password hashes", "err", err)
			return false
		}
		if match {
			store.userCache.Set(user, pass)
			return true
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		store.log.Error("looking up user", "err", err)
	}
	return false
}

// GetItem, SetItem and RemoveItem make the store a Storage backend.

func (store *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	row := store.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key)
	var value string
	err := row.Scan(&value)
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, err
	}
}

func (store *Store) SetItem(ctx context.Context, key, value string) error {
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO kv (key, value, updated) VALUES (?,?,?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated",
		key, value, time.Now().Unix(),
	)
	return err
}

func (store *Store) RemoveItem(ctx context.Context, key string) error {
	_, err := store.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}
