package queue

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// ErrClosed is returned by publishes to a closed queue.
var ErrClosed = errors.New("queue: closed")

// Handler consumes one record.
type Handler func(rec record.Record) error

// call runs h, turning a panic into an error.
func call(h Handler, rec record.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(rec)
}

// SyncReader runs its handler on the publishing goroutine.
type SyncReader struct {
	q       *Queue
	h       Handler
	stopped atomic.Bool
	logger  logpkg.Logger
}

// Reader registers a synchronous reader.
func (q *Queue) Reader(h Handler) *SyncReader {
	r := &SyncReader{q: q, h: h, logger: q.logger.With(logpkg.Str("reader", "sync"))}
	q.register(r)
	return r
}

// Stop detaches the reader. It receives nothing published after Stop and is
// dropped from the queue on the next publish. Safe from any goroutine.
func (r *SyncReader) Stop() { r.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (r *SyncReader) Stopped() bool { return r.stopped.Load() }

func (r *SyncReader) isStopped() bool { return r.stopped.Load() }

func (r *SyncReader) close() { r.Stop() }

func (r *SyncReader) deliver(rec record.Record) error {
	if r.h == nil {
		return nil
	}
	err := call(r.h, rec)
	if err == nil {
		return nil
	}
	r.q.metrics.HandlerFailed("sync")
	r.logger.Error("reader handler failed", logpkg.Uint64("queue_seq", rec.QueueSeq), logpkg.Err(err))
	if r.q.propagate {
		return err
	}
	return nil
}
