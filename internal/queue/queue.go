package queue

import (
	"sync"

	"github.com/rzbill/flolog/internal/metrics"
	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// DefaultBufferSize is the event capacity of a threaded reader.
const DefaultBufferSize = 1024

// Option configures a Queue.
type Option func(*Queue)

func WithLogger(l logpkg.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithPropagate returns handler errors to callers instead of only logging them.
func WithPropagate(on bool) Option {
	return func(q *Queue) { q.propagate = on }
}

// WithBufferSize sets the capacity of threaded readers created afterwards.
func WithBufferSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.bufferSize = n
		}
	}
}

// WithNextQueueSeq sets the first queue sequence the queue stamps.
func WithNextQueueSeq(n uint64) Option {
	return func(q *Queue) { q.nextSeq = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

type consumer interface {
	deliver(rec record.Record) error
	isStopped() bool
	close()
}

// Queue fans published records out to every registered reader in publish
// order. Sequence stamping and dispatch run under one lock, so a handler must
// not publish to the queue that invoked it.
type Queue struct {
	mu        sync.Mutex
	readers   []consumer
	nextSeq   uint64
	closed    bool
	propagate bool

	bufferSize int
	logger     logpkg.Logger
	metrics    *metrics.Metrics
}

// New returns an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logpkg.NewNopLogger()
	}
	q.logger = q.logger.With(logpkg.Component("queue"))
	return q
}

// NextQueueSeq is the sequence the next publish will stamp.
func (q *Queue) NextQueueSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextSeq
}

// Len is the number of registered readers, including stopped readers that
// have not been compacted yet.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.readers)
}

func (q *Queue) register(c consumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		c.close()
		return
	}
	q.readers = append(q.readers, c)
}

// compact drops readers stopped since the last publish. Dispatch never
// mutates the list it iterates.
func (q *Queue) compact() {
	live := q.readers[:0]
	for _, c := range q.readers {
		if !c.isStopped() {
			live = append(live, c)
		}
	}
	for i := len(live); i < len(q.readers); i++ {
		q.readers[i] = nil
	}
	q.readers = live
}

func (q *Queue) publish(topicID, topicSeq uint64, timestamp int64, data []byte) (record.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return record.Record{}, ErrClosed
	}
	q.compact()

	rec := record.Record{
		QueueSeq:  q.nextSeq,
		TopicID:   topicID,
		TopicSeq:  topicSeq,
		Timestamp: timestamp,
		Data:      append([]byte{}, data...),
	}
	q.nextSeq++
	q.metrics.RecordPublished()

	var first error
	for _, c := range q.readers {
		if c.isStopped() {
			continue
		}
		if err := c.deliver(rec); err != nil && first == nil {
			first = err
		}
	}
	return rec, first
}

// Close stops every reader. Later publishes fail with ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	readers := q.readers
	q.readers = nil
	q.closed = true
	q.mu.Unlock()
	for _, c := range readers {
		c.close()
	}
}

// TopicWriter publishes records for one topic, numbering them per topic.
type TopicWriter struct {
	q       *Queue
	topicID uint64
	mu      sync.Mutex
	nextSeq uint64
}

// Writer returns a publisher for topicID. nextTopicSeq optionally sets the
// first topic sequence; it defaults to 0.
func (q *Queue) Writer(topicID uint64, nextTopicSeq ...uint64) *TopicWriter {
	w := &TopicWriter{q: q, topicID: topicID}
	if len(nextTopicSeq) > 0 {
		w.nextSeq = nextTopicSeq[0]
	}
	return w
}

// TopicID is the topic this writer publishes to.
func (w *TopicWriter) TopicID() uint64 { return w.topicID }

// Write publishes one record and returns it as stamped. In propagate mode
// the first synchronous handler error is returned alongside the record.
func (w *TopicWriter) Write(timestamp int64, data []byte) (record.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, err := w.q.publish(w.topicID, w.nextSeq, timestamp, data)
	if err == ErrClosed {
		return rec, err
	}
	w.nextSeq++
	return rec, err
}
