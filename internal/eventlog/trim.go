package eventlog

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

const defaultTrimBatch = 1024

func (l *Log) hook() ArchiverHook {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.archiver
}

// TrimOlderThan deletes leading entries whose record timestamp is below
// cutoff, stopping at the first entry that is not. Deletes are committed in
// batches of batchLimit with an optional pause between commits, and each
// batch is reported to the ArchiverHook. It returns the number deleted and
// the last deleted position.
func (l *Log) TrimOlderThan(ctx context.Context, cutoff int64, batchLimit int, throttle time.Duration) (int, uint64, error) {
	return l.trim(ctx, batchLimit, throttle, func(_ []byte, rec record.Record, decoded bool) bool {
		return decoded && rec.Timestamp < cutoff
	})
}

// TrimToMaxBytes deletes the oldest entries until the stored value bytes are
// at most maxBytes.
func (l *Log) TrimToMaxBytes(ctx context.Context, maxBytes int64, batchLimit int, throttle time.Duration) (int, error) {
	if maxBytes < 0 {
		return 0, nil
	}
	total, err := l.SizeBytes()
	if err != nil {
		return 0, err
	}
	if total <= maxBytes {
		return 0, nil
	}
	n, _, err := l.trim(ctx, batchLimit, throttle, func(val []byte, _ record.Record, _ bool) bool {
		if total <= maxBytes {
			return false
		}
		total -= int64(len(val))
		return true
	})
	return n, err
}

// SizeBytes sums the stored value bytes of every entry.
func (l *Log) SizeBytes() (int64, error) {
	low, high := entryBounds(l.name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var total int64
	for ok := iter.First(); ok; ok = iter.Next() {
		total += int64(len(iter.Value()))
	}
	return total, nil
}

// trim deletes entries from the front while del reports true.
func (l *Log) trim(ctx context.Context, batchLimit int, throttle time.Duration, del func(val []byte, rec record.Record, decoded bool) bool) (int, uint64, error) {
	if batchLimit <= 0 {
		batchLimit = defaultTrimBatch
	}
	low, high := entryBounds(l.name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, 0, err
	}
	defer iter.Close()

	hook := l.hook()
	deleted := 0
	var lastSeq uint64
	for ok := iter.First(); ok; {
		b := l.db.NewBatch()
		n := 0
		var minSeq, maxSeq uint64
		for ok && n < batchLimit {
			rec, derr := record.Decode(iter.Value())
			if !del(iter.Value(), rec, derr == nil) {
				ok = false
				break
			}
			seq := seqFromKey(iter.Key())
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, lastSeq, err
			}
			if n == 0 {
				minSeq = seq
			}
			maxSeq = seq
			n++
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		if err := l.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, lastSeq, err
		}
		b.Close()
		deleted += n
		lastSeq = maxSeq
		hook.EmitTrimRange(l.name, minSeq, maxSeq)
		if ok && throttle > 0 {
			select {
			case <-time.After(throttle):
			case <-ctx.Done():
				return deleted, lastSeq, ctx.Err()
			}
		}
	}
	if deleted > 0 {
		l.logger.Info("trimmed log", logpkg.Int("deleted", deleted), logpkg.Uint64("last_seq", lastSeq))
	}
	return deleted, lastSeq, nil
}
