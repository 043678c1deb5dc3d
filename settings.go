package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

const settingsKey = "settings"

type SettingsRecord struct {
	NotificationsEnabled bool `json:"notificationsEnabled"`
	AutoDownload         bool `json:"autoDownload"`
	HighQuality          bool `json:"highQuality"`
	SafeSearch           bool `json:"safeSearch"`
	// Columns overrides the width-derived grid column count when 2..6.
	Columns int `json:"columns"`
}

func DefaultSettings() SettingsRecord {
	return SettingsRecord{
		NotificationsEnabled: true,
		AutoDownload:         false,
		HighQuality:          true,
		SafeSearch:           true,
		Columns:              0,
	}
}

// SettingsPatch is a partial update; nil fields are left alone.
type SettingsPatch struct {
	NotificationsEnabled *bool `json:"notificationsEnabled,omitempty"`
	AutoDownload         *bool `json:"autoDownload,omitempty"`
	HighQuality          *bool `json:"highQuality,omitempty"`
	SafeSearch           *bool `json:"safeSearch,omitempty"`
	Columns              *int  `json:"columns,omitempty"`
}

func (p SettingsPatch) apply(s SettingsRecord) SettingsRecord {
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.AutoDownload != nil {
		s.AutoDownload = *p.AutoDownload
	}
	if p.HighQuality != nil {
		s.HighQuality = *p.HighQuality
	}
	if p.SafeSearch != nil {
		s.SafeSearch = *p.SafeSearch
	}
	if p.Columns != nil {
		s.Columns = *p.Columns
	}
	return s
}

func (p SettingsPatch) Validate() error {
	if p.Columns != nil && *p.Columns != 0 && (*p.Columns < 2 || *p.Columns > maxColumns) {
		return fmt.Errorf("columns must be 0 or between 2 and %d", maxColumns)
	}
	return nil
}

// Settings stores one SettingsRecord document. Reads merge the stored JSON
// over DefaultSettings, so documents written before a setting existed still
// load.
type Settings struct {
	mu      sync.Mutex
	storage Storage
	key     string
	last    SettingsRecord
	log     *log.Logger
	metrics *Metrics
}

func NewSettings(storage Storage, user string, logger *log.Logger, metrics *Metrics) *Settings {
	return &Settings{
		storage: storage,
		key:     scopedKey(settingsKey, user),
		last:    DefaultSettings(),
		log:     logger.WithPrefix("settings"),
		metrics: metrics,
	}
}

// Get returns the merged record. On a read failure it returns the last good
// record and the error.
func (st *Settings) Get(ctx context.Context) (SettingsRecord, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.load(ctx)
}

// Set merges patch over the current record and writes the full result.
func (st *Settings) Set(ctx context.Context, patch SettingsPatch) (SettingsRecord, error) {
	if err := patch.Validate(); err != nil {
		return SettingsRecord{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	current, err := st.load(ctx)
	if err != nil {
		return current, err
	}
	next := patch.apply(current)
	if err := st.save(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}

func (st *Settings) Reset(ctx context.Context) (SettingsRecord, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	defaults := DefaultSettings()
	if err := st.save(ctx, defaults); err != nil {
		return st.last, err
	}
	return defaults, nil
}

func (st *Settings) load(ctx context.Context) (SettingsRecord, error) {
	rec := DefaultSettings()
	if _, err := getJSON(ctx, st.storage, st.key, &rec); err != nil {
		st.metrics.storageError("settings_read")
		st.log.Error("reading settings", "key", st.key, "err", err)
		return st.last, err
	}
	st.last = rec
	return rec, nil
}

func (st *Settings) save(ctx context.Context, rec SettingsRecord) error {
	if err := setJSON(ctx, st.storage, st.key, rec); err != nil {
		st.metrics.storageError("settings_write")
		st.log.Error("writing settings", "key", st.key, "err", err)
		return err
	}
	st.last = rec
	return nil
}
