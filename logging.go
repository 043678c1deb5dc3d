package main

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger builds the root logger. Components derive their own with
// WithPrefix, e.g. "pixabay", "cache", "store".
func NewLogger(cfg LogConfig, w io.Writer) *log.Logger {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	}
	if cfg.JSON {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
