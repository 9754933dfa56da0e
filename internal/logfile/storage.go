package logfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Magic opens every log file.
var Magic = [8]byte{'F', 'L', 'O', 'L', 'O', 'G', 0x00, 0x01}

// GzipSuffix selects gzip when compression is CompressionAuto.
const GzipSuffix = ".gz"

var (
	// ErrInvalidMagic means the stream does not start with Magic.
	ErrInvalidMagic = errors.New("logfile: invalid magic")
	// ErrTruncated means the stream ended inside a frame.
	ErrTruncated = errors.New("logfile: truncated record")
	// ErrFileExists is returned when a writer would overwrite an existing file.
	ErrFileExists = errors.New("logfile: file already exists")
	// ErrClosed is returned by a reader or writer after Close.
	ErrClosed = errors.New("logfile: closed")
)

// Compression selects the byte-stream wrapping of a log file.
type Compression int

const (
	// CompressionAuto picks gzip for paths ending in GzipSuffix.
	CompressionAuto Compression = iota
	CompressionNone
	CompressionGzip
)

// ParseCompression accepts "auto", "none" and "gzip".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return CompressionAuto, nil
	case "none", "raw":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	default:
		return CompressionAuto, fmt.Errorf("unknown compression %q", s)
	}
}

func (c Compression) resolve(path string) Compression {
	if c != CompressionAuto {
		return c
	}
	if strings.HasSuffix(path, GzipSuffix) {
		return CompressionGzip
	}
	return CompressionNone
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	default:
		return "auto"
	}
}

// File is the write side of a storage backend.
type File interface {
	io.WriteCloser
	Sync() error
}

// Storage opens log files by path.
type Storage interface {
	Open(path string) (io.ReadCloser, error)
	// Create must fail with an error matching os.ErrExist when path exists.
	Create(path string) (File, error)
}

// OSStorage is the local filesystem.
type OSStorage struct{}

func (OSStorage) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OSStorage) Create(path string) (File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}
