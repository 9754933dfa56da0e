package eventlog

import (
	"bytes"
	"testing"
)

func TestKeyOrderingEntries(t *testing.T) {
	a := KeyLogEntry("topic", 10)
	b := KeyLogEntry("topic", 11)
	c := KeyLogEntry("topic", 256)
	if !bytes.HasPrefix(a, KeyLogEntryPrefix("topic")) {
		t.Fatalf("entry key should carry the entry prefix")
	}
	if bytes.Compare(a, b) >= 0 || bytes.Compare(b, c) >= 0 {
		t.Fatalf("expected seq 10 < 11 < 256")
	}
	if seqFromKey(c) != 256 {
		t.Fatalf("seq roundtrip: got %d", seqFromKey(c))
	}
}

func TestEntriesDoNotOverlapNeighbourLogs(t *testing.T) {
	low, high := entryBounds("ab")
	other := KeyLogEntry("abc", 1)
	if bytes.Compare(other, low) >= 0 && bytes.Compare(other, high) < 0 {
		t.Fatalf("log abc falls inside bounds of log ab")
	}
	if bytes.Equal(KeyLogMeta("ab"), KeyLogEntryPrefix("ab")) {
		t.Fatalf("meta and entry keys collide")
	}
}

func TestCursorKey(t *testing.T) {
	k := KeyCursor("t", "g")
	if string(k) != "cursor/t/g" {
		t.Fatalf("unexpected cursor layout: %q", string(k))
	}
}
