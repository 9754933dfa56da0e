package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default data directory for the event log store.
// XDG_DATA_HOME wins when set; otherwise the usual per-OS location is used,
// falling back to ~/.flolog.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "flolog")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	switch {
	case isDir("/var/lib"):
		return "/var/lib/flolog"
	case isDir(filepath.Join(home, "Library")):
		return filepath.Join(home, "Library", "Application Support", "Flolog")
	case isDir(filepath.Join(home, "AppData")):
		return filepath.Join(home, "AppData", "Local", "Flolog")
	}
	return filepath.Join(home, ".flolog")
}

// ArchiveDir is the directory archive files are written to. A relative
// Archive.Dir is resolved against Store.DataDir; an empty one means the data
// dir itself.
func (c Config) ArchiveDir() string {
	dir := c.Archive.Dir
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(c.Store.DataDir, dir)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
