package merge

import (
	"container/heap"
	"errors"
	"io"

	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// ErrDuplicateReader is returned when a source is registered twice.
var ErrDuplicateReader = errors.New("merge: source already registered")

// Source is anything with one record of lookahead. Peek and Read return
// (nil, nil) when the source is exhausted. Sources are used as map keys and
// must be comparable, which every pointer type is.
type Source interface {
	Peek() (*record.Record, error)
	Read() (*record.Record, error)
}

type container struct {
	src   Source
	onEOF func() error
	order uint64 // registration order, breaks key ties

	rec     *record.Record
	key     Key
	stale   bool
	removed bool
	index   int
}

type containerHeap []*container

func (h containerHeap) Len() int { return len(h) }

func (h containerHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.stale != b.stale {
		return a.stale
	}
	if !a.stale && a.key != b.key {
		return a.key.Less(b.key)
	}
	return a.order < b.order
}

func (h containerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *containerHeap) Push(x any) {
	c := x.(*container)
	c.index = len(*h)
	*h = append(*h, c)
}

func (h *containerHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

// Option configures a Reader.
type Option func(*Reader)

func WithLogger(l logpkg.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// Reader merges any number of sources into one stream ordered by an Order.
// Records with equal keys come out in source registration order. A Reader is
// itself a Source. It is not safe for concurrent use.
type Reader struct {
	order   Order
	heap    containerHeap
	sources map[Source]*container
	head    *container // popped minimum whose record is the current Peek
	nextID  uint64
	logger  logpkg.Logger
}

// New returns an empty merge reader. A nil order selects ByTimestamp.
func New(order Order, opts ...Option) *Reader {
	if order == nil {
		order = ByTimestamp
	}
	r := &Reader{order: order, sources: make(map[Source]*container)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logpkg.NewNopLogger()
	}
	r.logger = r.logger.With(logpkg.Component("merge"))
	return r
}

// AddReader registers src. onEOF, if non-nil, runs exactly once when src is
// exhausted; its error is returned from the Peek or Read that observed the end.
func (r *Reader) AddReader(src Source, onEOF func() error) error {
	if _, ok := r.sources[src]; ok {
		return ErrDuplicateReader
	}
	c := &container{src: src, onEOF: onEOF, order: r.nextID, stale: true}
	r.nextID++
	r.sources[src] = c
	r.requeueHead()
	heap.Push(&r.heap, c)
	return nil
}

// RemoveReader unregisters src without closing it. Its onEOF never runs.
func (r *Reader) RemoveReader(src Source) bool {
	c, ok := r.sources[src]
	if !ok {
		return false
	}
	delete(r.sources, src)
	c.removed = true
	if r.head == c {
		r.head = nil
	}
	return true
}

// Len is the number of registered sources that have not reached EOF.
func (r *Reader) Len() int { return len(r.sources) }

// requeueHead puts the held minimum back so a newly added source competes.
func (r *Reader) requeueHead() {
	if r.head != nil {
		heap.Push(&r.heap, r.head)
		r.head = nil
	}
}

// Peek returns the smallest pending record across all sources.
func (r *Reader) Peek() (*record.Record, error) {
	if r.head != nil {
		return r.head.rec, nil
	}
	for r.heap.Len() > 0 {
		c := heap.Pop(&r.heap).(*container)
		if c.removed {
			continue
		}
		if !c.stale {
			r.head = c
			return c.rec, nil
		}
		rec, err := c.src.Peek()
		if err != nil {
			heap.Push(&r.heap, c)
			return nil, err
		}
		if rec == nil {
			delete(r.sources, c.src)
			c.removed = true
			if c.onEOF != nil {
				if err := c.onEOF(); err != nil {
					return nil, err
				}
			}
			continue
		}
		c.rec = rec
		c.key = r.order(rec)
		c.stale = false
		heap.Push(&r.heap, c)
	}
	return nil, nil
}

// Read returns and consumes the smallest pending record.
func (r *Reader) Read() (*record.Record, error) {
	rec, err := r.Peek()
	if err != nil || rec == nil {
		return nil, err
	}
	c := r.head
	r.head = nil
	c.rec = nil
	c.stale = true
	got, err := c.src.Read()
	heap.Push(&r.heap, c)
	if err != nil {
		return nil, err
	}
	if got == nil {
		r.logger.Warn("source lost its peeked record")
		return rec, nil
	}
	return got, nil
}

// Close closes every remaining source that implements io.Closer and
// unregisters all sources.
func (r *Reader) Close() error {
	var errs []error
	for src := range r.sources {
		if cl, ok := src.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	r.sources = make(map[Source]*container)
	r.heap = nil
	r.head = nil
	return errors.Join(errs...)
}
