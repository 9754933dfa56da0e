package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/flolog/internal/logfile"
	"github.com/rzbill/flolog/internal/merge"
	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Log     logpkg.Config `json:"log" yaml:"log"`
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
	Reader  ReaderConfig  `json:"reader" yaml:"reader"`
	Store   StoreConfig   `json:"store" yaml:"store"`
}

// ArchiveConfig controls the queue archiver that writes log files.
type ArchiveConfig struct {
	Dir           string   `json:"dir" yaml:"dir"`
	FlushInterval Duration `json:"flushInterval" yaml:"flushInterval"`
	Compression   string   `json:"compression" yaml:"compression"` // auto, none, gzip
	BufferSize    int      `json:"bufferSize" yaml:"bufferSize"`   // threaded reader capacity
}

type ReaderConfig struct {
	MaxRecordBytes int    `json:"maxRecordBytes" yaml:"maxRecordBytes"`
	SkipCorrupt    bool   `json:"skipCorrupt" yaml:"skipCorrupt"`
	Order          string `json:"order" yaml:"order"` // timestamp or sequence
}

// StoreConfig configures the Pebble-backed event log.
type StoreConfig struct {
	DataDir       string   `json:"dataDir" yaml:"dataDir"`
	Fsync         string   `json:"fsync" yaml:"fsync"` // always, interval, never
	FsyncInterval Duration `json:"fsyncInterval" yaml:"fsyncInterval"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Log: logpkg.Config{Level: "info", Format: "text"},
		Archive: ArchiveConfig{
			Dir:           "archive",
			FlushInterval: Duration(time.Second),
			Compression:   "auto",
			BufferSize:    1024,
		},
		Reader: ReaderConfig{MaxRecordBytes: 64 << 20, Order: "timestamp"},
		Store: StoreConfig{
			DataDir:       DefaultDataDir(),
			Fsync:         "interval",
			FsyncInterval: Duration(5 * time.Millisecond),
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks that every enumerated field holds a known value.
func (c Config) Validate() error {
	var errs []error
	if _, err := logpkg.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if _, err := logfile.ParseCompression(c.Archive.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := merge.OrderByName(c.Reader.Order); err != nil {
		errs = append(errs, err)
	}
	if _, err := pebblestore.ParseFsyncMode(c.Store.Fsync); err != nil {
		errs = append(errs, err)
	}
	if c.Archive.FlushInterval < 0 {
		errs = append(errs, errors.New("archive.flushInterval must not be negative"))
	}
	if c.Reader.MaxRecordBytes < 0 {
		errs = append(errs, errors.New("reader.maxRecordBytes must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(n)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}
