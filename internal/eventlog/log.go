package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/flolog/internal/record"
	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

var (
	// ErrInvalidName is returned for empty log names or names containing '/'.
	ErrInvalidName = errors.New("eventlog: invalid log name")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("eventlog: closed")
)

// Option configures a Log.
type Option func(*Log)

func WithLogger(l logpkg.Logger) Option {
	return func(lg *Log) { lg.logger = l }
}

// WithArchiverHook sets the hook told about trimmed ranges.
func WithArchiverHook(h ArchiverHook) Option {
	return func(lg *Log) {
		if h != nil {
			lg.archiver = h
		}
	}
}

// Log is a named, append-only sequence of records persisted in Pebble. Each
// stored record gets a position: 1, 2, 3, ... in append order. Records keep
// their own queue and topic sequences.
type Log struct {
	db     *pebblestore.DB
	name   string
	logger logpkg.Logger

	mu       sync.Mutex
	lastSeq  uint64
	pending  *pebble.Batch
	npending int
	closed   bool
	notifyCh chan struct{}
	archiver ArchiverHook
}

// OpenLog loads the last position of the named log from its metadata.
func OpenLog(db *pebblestore.DB, name string, opts ...Option) (*Log, error) {
	if name == "" || strings.ContainsRune(name, '/') {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	l := &Log{db: db, name: name, notifyCh: make(chan struct{}), archiver: noopArchiver{}}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logpkg.NewNopLogger()
	}
	l.logger = l.logger.With(logpkg.Component("eventlog"), logpkg.Str("log", name))

	meta, err := db.Get(KeyLogMeta(name))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, fmt.Errorf("eventlog: load meta: %w", err)
	}
	return l, nil
}

// Name is the log name.
func (l *Log) Name() string { return l.name }

// LastSeq is the last assigned position, counting records buffered by
// WriteRecord but not yet flushed.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

func (l *Log) stage(b *pebble.Batch, rec record.Record) (uint64, error) {
	l.lastSeq++
	seq := l.lastSeq
	if err := b.Set(KeyLogEntry(l.name, seq), record.Encode(rec), nil); err != nil {
		l.lastSeq--
		return 0, err
	}
	return seq, nil
}

func (l *Log) setMeta(b *pebble.Batch) error {
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], l.lastSeq)
	return b.Set(KeyLogMeta(l.name), meta[:], nil)
}

// notify wakes every WaitForAppend caller. Caller holds l.mu.
func (l *Log) notify() {
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
}

// Append stores recs as one atomic batch and returns their positions. Records
// buffered by WriteRecord are committed first.
func (l *Log) Append(ctx context.Context, recs []record.Record) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if err := l.flushLocked(ctx); err != nil {
		return nil, err
	}

	b := l.db.NewBatch()
	defer b.Close()
	base := l.lastSeq
	seqs := make([]uint64, len(recs))
	for i, r := range recs {
		seq, err := l.stage(b, r)
		if err != nil {
			l.lastSeq = base
			return nil, err
		}
		seqs[i] = seq
	}
	if err := l.setMeta(b); err != nil {
		l.lastSeq = base
		return nil, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		l.lastSeq = base
		return nil, err
	}
	l.notify()
	return seqs, nil
}

// WriteRecord buffers rec for the next Flush. It lets a Log serve as an
// archiver sink.
func (l *Log) WriteRecord(rec record.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.pending == nil {
		l.pending = l.db.NewBatch()
	}
	if _, err := l.stage(l.pending, rec); err != nil {
		return err
	}
	l.npending++
	return nil
}

// Flush commits records buffered by WriteRecord in one batch.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(context.Background())
}

func (l *Log) flushLocked(ctx context.Context) error {
	if l.pending == nil {
		return nil
	}
	b := l.pending
	if err := l.setMeta(b); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("eventlog: flush %d records: %w", l.npending, err)
	}
	b.Close()
	l.logger.Debug("flushed records", logpkg.Int("records", l.npending), logpkg.Uint64("last_seq", l.lastSeq))
	l.pending = nil
	l.npending = 0
	l.notify()
	return nil
}

// Close flushes buffered records. The database stays open.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	err := l.flushLocked(context.Background())
	if l.pending != nil {
		l.pending.Close()
		l.pending = nil
	}
	l.closed = true
	return err
}
