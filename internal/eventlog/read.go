package eventlog

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// Token encodes a position as 8 big-endian bytes. The zero Token means "from
// the beginning" (forward) or "from the end" (reverse).
type Token [8]byte

// TokenFromSeq returns the token for position seq.
func TokenFromSeq(seq uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], seq)
	return t
}

func (t Token) Seq() uint64 { return binary.BigEndian.Uint64(t[:]) }

// IsZero reports whether t is the zero token.
func (t Token) IsZero() bool { return t == Token{} }

type ReadOptions struct {
	Start   Token // inclusive; zero begins at the first (or, reversed, last) entry
	Limit   int   // 0 reads everything
	Reverse bool
}

// Item is one stored record and its position.
type Item struct {
	Seq    uint64
	Record record.Record
}

// Read returns up to Limit items starting at Start and the token of the next
// unread entry (zero when the scan reached the end). Entries that fail to
// decode are logged and skipped; an iterator failure is returned.
func (l *Log) Read(opts ReadOptions) ([]Item, Token, error) {
	entries, next, err := l.scan(opts)
	if err != nil {
		return nil, Token{}, err
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.err != nil {
			l.logger.Warn("skipping undecodable entry", logpkg.Uint64("seq", e.seq), logpkg.Err(e.err))
			continue
		}
		items = append(items, Item{Seq: e.seq, Record: e.rec})
	}
	return items, next, nil
}

// entry is one scanned position: a decoded record or its decode error.
type entry struct {
	seq uint64
	rec record.Record
	err error
}

// scan walks entries from opts.Start. Undecodable entries are returned with
// err set and do not count toward opts.Limit.
func (l *Log) scan(opts ReadOptions) ([]entry, Token, error) {
	startSeq := opts.Start.Seq()
	low, high := entryBounds(l.name)

	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, Token{}, fmt.Errorf("eventlog %s: open iterator: %w", l.name, err)
	}
	defer iter.Close()

	var ok bool
	switch {
	case opts.Reverse && startSeq == 0:
		ok = iter.Last()
	case opts.Reverse:
		ok = iter.SeekLT(KeyLogEntry(l.name, startSeq+1))
	case startSeq == 0:
		ok = iter.First()
	default:
		ok = iter.SeekGE(KeyLogEntry(l.name, startSeq))
	}

	entries := make([]entry, 0, max(1, opts.Limit))
	good := 0
	for ok && (opts.Limit == 0 || good < opts.Limit) {
		seq := seqFromKey(iter.Key())
		rec, err := record.Decode(iter.Value())
		if err != nil {
			entries = append(entries, entry{seq: seq, err: corruptEntry(seq, err)})
		} else {
			entries = append(entries, entry{seq: seq, rec: rec})
			good++
		}
		if opts.Reverse {
			ok = iter.Prev()
		} else {
			ok = iter.Next()
		}
	}
	if err := iter.Error(); err != nil {
		return nil, Token{}, fmt.Errorf("eventlog %s: scan: %w", l.name, err)
	}
	var next Token
	if ok && iter.Valid() {
		next = TokenFromSeq(seqFromKey(iter.Key()))
	}
	return entries, next, nil
}

// corruptEntry reports a stored frame that failed to decode. Each entry has
// its own key, so reading can always continue past it.
func corruptEntry(seq uint64, err error) error {
	return &record.CorruptionError{Err: &entryError{seq: seq, cause: err}, Offset: -1}
}

type entryError struct {
	seq   uint64
	cause error
}

func (e *entryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.seq, e.cause)
}

// Is matches record.ErrCRCRecord so record.IsRecoverable holds.
func (e *entryError) Is(target error) bool { return target == record.ErrCRCRecord }

func (e *entryError) Unwrap() error { return e.cause }
