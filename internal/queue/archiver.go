package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// DefaultFlushPeriod is how long the archiver drains between flushes.
const DefaultFlushPeriod = time.Second

// Sink is the durable side of an archiver. *logfile.Writer and
// *eventlog.Log implement it.
type Sink interface {
	WriteRecord(rec record.Record) error
	Flush() error
	Close() error
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

func WithFlushPeriod(d time.Duration) ArchiverOption {
	return func(a *Archiver) {
		if d > 0 {
			a.period = d
		}
	}
}

func WithArchiverLogger(l logpkg.Logger) ArchiverOption {
	return func(a *Archiver) { a.logger = l }
}

// ArchiverStats is a snapshot of archiver progress.
type ArchiverStats struct {
	Records uint64
	Flushes uint64
	Errors  uint64
}

// Archiver copies every record published to a queue into a Sink on its own
// goroutine, flushing once per period.
type Archiver struct {
	sink   Sink
	reader *ThreadedReader
	period time.Duration
	logger logpkg.Logger

	records atomic.Uint64
	flushes atomic.Uint64
	errs    atomic.Uint64

	mu       sync.Mutex
	firstErr error
	done     chan struct{}
}

// StartArchiver registers a threaded reader on q and starts copying into
// sink. The archiver owns sink and closes it on Stop.
func (q *Queue) StartArchiver(sink Sink, opts ...ArchiverOption) *Archiver {
	a := &Archiver{sink: sink, period: DefaultFlushPeriod, done: make(chan struct{})}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = q.logger
	}
	a.logger = a.logger.With(logpkg.Component("archiver"))
	a.reader = q.ThreadedReader(a.write)
	go a.loop()
	a.logger.Info("archiver started", logpkg.Dur("flush_period", a.period))
	return a
}

func (a *Archiver) write(rec record.Record) error {
	if err := a.sink.WriteRecord(rec); err != nil {
		a.fail(err)
		return err
	}
	a.records.Add(1)
	return nil
}

func (a *Archiver) fail(err error) {
	a.errs.Add(1)
	a.mu.Lock()
	if a.firstErr == nil {
		a.firstErr = err
	}
	a.mu.Unlock()
}

func (a *Archiver) flush() {
	if err := a.sink.Flush(); err != nil {
		a.logger.Error("archiver flush failed", logpkg.Err(err))
		a.fail(err)
		return
	}
	a.flushes.Add(1)
}

func (a *Archiver) loop() {
	defer close(a.done)
	for {
		n, stopped := a.reader.DrainFor(a.period)
		if n > 0 || stopped {
			a.flush()
		}
		if stopped {
			break
		}
	}
	if err := a.sink.Close(); err != nil {
		a.logger.Error("archiver close failed", logpkg.Err(err))
		a.fail(err)
	}
	a.logger.Info("archiver stopped", logpkg.Uint64("records", a.records.Load()), logpkg.Uint64("flushes", a.flushes.Load()))
}

// Stop stops the reader, waits until every record published before it is
// written, flushed and the sink closed, and returns the first error.
// Later calls return the same error.
func (a *Archiver) Stop() error {
	a.reader.Stop()
	<-a.done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.firstErr
}

// Done is closed once the archiver goroutine has exited.
func (a *Archiver) Done() <-chan struct{} { return a.done }

func (a *Archiver) Stats() ArchiverStats {
	return ArchiverStats{Records: a.records.Load(), Flushes: a.flushes.Load(), Errors: a.errs.Load()}
}

// IsStopped reports whether the archiver goroutine has exited.
func (a *Archiver) IsStopped() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
