package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - log/{name}/m              last assigned position
// - log/{name}/e/{seq_be8}    framed record
// - cursor/{name}/{group}     durable consumer position

var (
	sep        = byte('/')
	logPrefix  = []byte("log/")
	cursorPfx  = []byte("cursor/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyLogMeta builds the metadata key of a log.
func KeyLogMeta(name string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(name)+len(metaSuffix))
	k = append(k, logPrefix...)
	k = append(k, name...)
	k = append(k, metaSuffix...)
	return k
}

// KeyLogEntryPrefix is the common prefix of every entry key of a log.
func KeyLogEntryPrefix(name string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(name)+len(entrySeg)+8)
	k = append(k, logPrefix...)
	k = append(k, name...)
	k = append(k, entrySeg...)
	return k
}

// KeyLogEntry builds the entry key with a big-endian position for ordering.
func KeyLogEntry(name string, seq uint64) []byte {
	return appendBE8(KeyLogEntryPrefix(name), seq)
}

// KeyCursor builds the durable cursor key for a consumer group.
func KeyCursor(name, group string) []byte {
	k := make([]byte, 0, len(cursorPfx)+len(name)+len(group)+1)
	k = append(k, cursorPfx...)
	k = append(k, name...)
	k = append(k, sep)
	k = append(k, group...)
	return k
}

// seqFromKey extracts the position suffix of an entry key.
func seqFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}

// entryBounds returns iterator bounds covering every entry of a log.
func entryBounds(name string) (low, high []byte) {
	return KeyLogEntry(name, 0), append(KeyLogEntry(name, ^uint64(0)), 0x00)
}
