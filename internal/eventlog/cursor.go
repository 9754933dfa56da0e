package eventlog

import (
	"encoding/binary"
	"errors"

	"github.com/rzbill/flolog/internal/record"
	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// CommitCursor stores the last processed token for a consumer group. A token
// at or below the stored one is ignored, so commits never regress.
func (l *Log) CommitCursor(group string, tok Token) error {
	key := KeyCursor(l.name, group)
	cur, err := l.db.Get(key)
	switch {
	case err == nil && len(cur) >= 8:
		if tok.Seq() <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return err
	}
	return l.db.Set(key, tok[:])
}

// GetCursor loads the committed token of a consumer group.
func (l *Log) GetCursor(group string) (Token, bool) {
	cur, err := l.db.Get(KeyCursor(l.name, group))
	if err != nil || len(cur) < 8 {
		return Token{}, false
	}
	var t Token
	copy(t[:], cur[:8])
	return t, true
}

const defaultPageSize = 256

// Cursor walks a Log forward with one record of lookahead and satisfies the
// merge Source contract. It returns (nil, nil) once it reaches the last
// committed entry; records appended later are seen by the next Peek.
//
// An entry that fails to decode is reported once by Peek or Read as a
// recoverable *record.CorruptionError (see record.IsRecoverable); the next
// call moves past it. Store failures are returned as they are and are not
// recoverable. A Cursor is not safe for concurrent use.
type Cursor struct {
	l        *Log
	next     uint64 // next position to fetch
	pageSize int
	page     []entry
	last     uint64 // position of the last entry consumed
}

// NewCursor starts at position from (inclusive). Zero starts at the first entry.
func (l *Log) NewCursor(from Token) *Cursor {
	return &Cursor{l: l, next: from.Seq(), pageSize: defaultPageSize}
}

// ResumeCursor starts right after the token committed for group.
func (l *Log) ResumeCursor(group string) *Cursor {
	tok, ok := l.GetCursor(group)
	if !ok {
		return l.NewCursor(Token{})
	}
	return l.NewCursor(TokenFromSeq(tok.Seq() + 1))
}

func (c *Cursor) fill() error {
	entries, _, err := c.l.scan(ReadOptions{Start: TokenFromSeq(c.next), Limit: c.pageSize})
	if err != nil {
		return err
	}
	c.page = entries
	if n := len(entries); n > 0 {
		c.next = entries[n-1].seq + 1
	}
	return nil
}

func (c *Cursor) Peek() (*record.Record, error) {
	if len(c.page) == 0 {
		if err := c.fill(); err != nil {
			return nil, err
		}
		if len(c.page) == 0 {
			return nil, nil
		}
	}
	if e := c.page[0]; e.err != nil {
		c.page = c.page[1:]
		c.last = e.seq
		c.l.logger.Warn("undecodable entry", logpkg.Uint64("seq", e.seq), logpkg.Err(e.err))
		return nil, e.err
	}
	return &c.page[0].rec, nil
}

func (c *Cursor) Read() (*record.Record, error) {
	rec, err := c.Peek()
	if rec == nil || err != nil {
		return rec, err
	}
	c.last = c.page[0].seq
	c.page = c.page[1:]
	return rec, nil
}

// Position is the token of the last entry consumed (a record returned by Read
// or a reported corrupt entry), suitable for CommitCursor. It is zero before
// the first one.
func (c *Cursor) Position() Token { return TokenFromSeq(c.last) }

// Commit stores Position for group.
func (c *Cursor) Commit(group string) error {
	if c.last == 0 {
		return nil
	}
	return c.l.CommitCursor(group, c.Position())
}
