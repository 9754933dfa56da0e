package id

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ArchiveExt is the extension of uncompressed archive files.
const ArchiveExt = ".flolog"

// ArchiveFileName names an archive file so that a directory listing sorts in
// creation order: "<prefix>-<id><ArchiveExt>", with ".gz" appended when
// compressed. An empty prefix yields "archive".
func ArchiveFileName(prefix string, i ID, compressed bool) string {
	if prefix == "" {
		prefix = "archive"
	}
	name := prefix + "-" + i.String() + ArchiveExt
	if compressed {
		name += ".gz"
	}
	return name
}

// ParseArchiveFileName extracts the prefix and ID from a name produced by
// ArchiveFileName. Directory components are ignored.
func ParseArchiveFileName(name string) (prefix string, i ID, compressed bool, err error) {
	base := filepath.Base(name)
	if strings.HasSuffix(base, ".gz") {
		compressed = true
		base = strings.TrimSuffix(base, ".gz")
	}
	if !strings.HasSuffix(base, ArchiveExt) {
		return "", ID{}, false, fmt.Errorf("%w: %q is not an archive file", ErrInvalid, name)
	}
	base = strings.TrimSuffix(base, ArchiveExt)
	dash := strings.LastIndexByte(base, '-')
	if dash <= 0 {
		return "", ID{}, false, fmt.Errorf("%w: %q has no prefix", ErrInvalid, name)
	}
	i, err = Parse(base[dash+1:])
	if err != nil {
		return "", ID{}, false, fmt.Errorf("%w: %q", err, name)
	}
	return base[:dash], i, compressed, nil
}
