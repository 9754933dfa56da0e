package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays FLOLOG_* environment variables onto cfg. Values that fail
// to parse are ignored and leave the existing setting in place.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLOLOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FLOLOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("FLOLOG_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}
	if v := os.Getenv("FLOLOG_ARCHIVE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.FlushInterval = Duration(d)
		}
	}
	if v := os.Getenv("FLOLOG_ARCHIVE_COMPRESSION"); v != "" {
		cfg.Archive.Compression = v
	}
	if v := os.Getenv("FLOLOG_ARCHIVE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Archive.BufferSize = n
		}
	}
	if v := os.Getenv("FLOLOG_READER_MAX_RECORD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reader.MaxRecordBytes = n
		}
	}
	if v := os.Getenv("FLOLOG_READER_SKIP_CORRUPT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reader.SkipCorrupt = b
		}
	}
	if v := os.Getenv("FLOLOG_READER_ORDER"); v != "" {
		cfg.Reader.Order = v
	}
	if v := os.Getenv("FLOLOG_STORE_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("FLOLOG_STORE_FSYNC"); v != "" {
		cfg.Store.Fsync = v
	}
	if v := os.Getenv("FLOLOG_STORE_FSYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.FsyncInterval = Duration(d)
		}
	}
}
