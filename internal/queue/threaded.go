package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// ThreadedReader buffers published records in a bounded FIFO and consumes
// them on another goroutine, either through its handler (Run, Start,
// DrainFor) or as a blocking merge source (Peek, Read). Only one goroutine
// may consume at a time. A full FIFO blocks the publisher.
type ThreadedReader struct {
	q  *Queue
	h  Handler
	ch chan record.Record

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{} // closed by Stop
	done     chan struct{} // closed when the consumer has seen the end
	doneOnce sync.Once

	// consumer side
	finished bool
	peeked   *record.Record

	errMu sync.Mutex
	err   error

	startOnce sync.Once
	waitCh    chan struct{}
	runErr    error
	logger    logpkg.Logger
}

// ThreadedReader registers a reader that is drained off the publishing
// goroutine. h may be nil when the reader is only used as a Source.
func (q *Queue) ThreadedReader(h Handler) *ThreadedReader {
	r := &ThreadedReader{
		q:      q,
		h:      h,
		ch:     make(chan record.Record, q.bufferSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: q.logger.With(logpkg.Str("reader", "threaded")),
	}
	q.register(r)
	return r
}

func (r *ThreadedReader) isStopped() bool { return r.stopped.Load() }

func (r *ThreadedReader) close() { r.Stop() }

func (r *ThreadedReader) deliver(rec record.Record) error {
	select {
	case r.ch <- rec:
	case <-r.done:
	}
	return nil
}

// Stop marks the reader stopped. The consumer still handles every record
// already buffered and then ends. Stop never blocks and is safe from any
// goroutine, including the handler itself.
func (r *ThreadedReader) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		close(r.stopCh)
	})
}

type recvResult int

const (
	recvRecord recvResult = iota
	recvEnd               // stopped and the FIFO is empty
	recvCancel
	recvTimeout
)

// recv waits for the next buffered record. A nil timeout waits forever.
func (r *ThreadedReader) recv(ctx context.Context, timeout <-chan time.Time) (record.Record, recvResult) {
	select {
	case rec := <-r.ch:
		return rec, recvRecord
	case <-r.stopCh:
		select {
		case rec := <-r.ch:
			return rec, recvRecord
		default:
			return record.Record{}, recvEnd
		}
	case <-ctx.Done():
		return record.Record{}, recvCancel
	case <-timeout:
		return record.Record{}, recvTimeout
	}
}

// Stopped reports whether Stop was called.
func (r *ThreadedReader) Stopped() bool { return r.stopped.Load() }

// Pending is the number of buffered records.
func (r *ThreadedReader) Pending() int { return len(r.ch) }

// Err returns the first handler error seen by the consumer. Safe from any
// goroutine.
func (r *ThreadedReader) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *ThreadedReader) finish() {
	r.finished = true
	r.peeked = nil
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *ThreadedReader) handle(rec record.Record) error {
	if r.h == nil {
		return nil
	}
	err := call(r.h, rec)
	if err == nil {
		return nil
	}
	r.q.metrics.HandlerFailed("threaded")
	r.logger.Error("reader handler failed", logpkg.Uint64("queue_seq", rec.QueueSeq), logpkg.Err(err))
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
	return err
}

// Run handles records until the reader is stopped and drained, or ctx is
// done. In propagate mode the first handler error ends the run and is
// returned.
func (r *ThreadedReader) Run(ctx context.Context) error {
	if r.finished {
		return nil
	}
	for {
		rec, res := r.recv(ctx, nil)
		switch res {
		case recvEnd:
			r.finish()
			return nil
		case recvCancel:
			r.stopped.Store(true)
			r.finish()
			return ctx.Err()
		}
		if err := r.handle(rec); err != nil && r.q.propagate {
			r.stopped.Store(true)
			r.finish()
			return err
		}
	}
}

// Start runs Run on a new goroutine. Wait joins it.
func (r *ThreadedReader) Start() {
	r.startOnce.Do(func() {
		r.waitCh = make(chan struct{})
		go func() {
			defer close(r.waitCh)
			r.runErr = r.Run(context.Background())
		}()
	})
}

// Wait blocks until the goroutine started by Start returns.
func (r *ThreadedReader) Wait() error {
	if r.waitCh == nil {
		return nil
	}
	<-r.waitCh
	return r.runErr
}

// DrainFor handles buffered records for at most d. It reports how many
// records were handled and whether the reader ended (stopped and drained).
func (r *ThreadedReader) DrainFor(d time.Duration) (int, bool) {
	if r.finished {
		return 0, true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	n := 0
	for {
		rec, res := r.recv(context.Background(), timer.C)
		switch res {
		case recvEnd:
			r.finish()
			return n, true
		case recvTimeout:
			return n, false
		}
		_ = r.handle(rec)
		n++
	}
}

// Peek blocks until a record is buffered. It returns (nil, nil) once the
// reader is stopped and every record before the stop was consumed.
func (r *ThreadedReader) Peek() (*record.Record, error) {
	if r.peeked != nil {
		return r.peeked, nil
	}
	if r.finished {
		return nil, nil
	}
	rec, res := r.recv(context.Background(), nil)
	if res == recvEnd {
		r.finish()
		return nil, nil
	}
	r.peeked = &rec
	return r.peeked, nil
}

// Read is Peek followed by consuming the record.
func (r *ThreadedReader) Read() (*record.Record, error) {
	rec, err := r.Peek()
	r.peeked = nil
	return rec, err
}
