package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != filepath.Join("/custom/data", "flolog") {
		t.Fatalf("got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("USERPROFILE", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected ./data fallback, got %s", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	got := DefaultDataDir()
	if got != DefaultDataDir() {
		t.Fatalf("not stable across calls")
	}
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("want absolute or ./ path, got %s", got)
	}
	if base := strings.ToLower(filepath.Base(got)); base != "flolog" && base != ".flolog" && base != "data" {
		t.Fatalf("unexpected leaf %s", got)
	}
}

func TestArchiveDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "arch")
	tests := []struct {
		name    string
		dataDir string
		dir     string
		want    string
	}{
		{"relative", "/srv/flolog", "archive", filepath.Join("/srv/flolog", "archive")},
		{"nested", "/srv/flolog", "a/b", filepath.Join("/srv/flolog", "a", "b")},
		{"empty", "/srv/flolog", "", "/srv/flolog"},
		{"absolute", "/srv/flolog", abs, abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Store.DataDir = tt.dataDir
			c.Archive.Dir = tt.dir
			if got := c.ArchiveDir(); got != tt.want {
				t.Fatalf("ArchiveDir() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		want bool
	}{
		{".", true},
		{"/non/existent/path", false},
		{file, false},
	}
	for _, tt := range tests {
		if got := isDir(tt.path); got != tt.want {
			t.Errorf("isDir(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
