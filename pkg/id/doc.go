// Package id provides a 128-bit, lexicographically sortable identifier.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// This guarantees that byte-wise comparison preserves chronological order,
// and that IDs generated within the same millisecond remain strictly
// increasing by sequence.
//
// # Monotonicity
//
// IDs from one Generator never go backwards. A clock regression pins the
// generator to the last millisecond it saw and keeps counting; a sequence
// overflow blocks until the clock moves on.
//
// # Usage
//
//	g := id.NewGenerator()
//	v := g.Next()
//	s := v.String()          // 32 hex characters, sorts like v
//	back, err := id.Parse(s) // back == v
//
// # Archive files
//
// ArchiveFileName embeds an ID into a file name so archive files written by
// the queue archiver list in the order they were created:
//
//	name := id.ArchiveFileName("orders", g.Next(), true) // orders-<hex>.flolog.gz
package id
