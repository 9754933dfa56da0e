package logfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/rzbill/flolog/internal/metrics"
	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

const defaultWriteBuffer = 64 << 10

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	storage      Storage
	compression  Compression
	bufferSize   int
	nextQueueSeq uint64
	logger       logpkg.Logger
	metrics      *metrics.Metrics
}

func WithWriterStorage(s Storage) WriterOption {
	return func(o *writerOptions) { o.storage = s }
}

func WithWriterCompression(c Compression) WriterOption {
	return func(o *writerOptions) { o.compression = c }
}

// WithBufferSize sets the write buffer in front of the file.
func WithBufferSize(n int) WriterOption {
	return func(o *writerOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithNextQueueSeq sets the first auto-assigned queue sequence.
func WithNextQueueSeq(n uint64) WriterOption {
	return func(o *writerOptions) { o.nextQueueSeq = n }
}

func WithWriterLogger(l logpkg.Logger) WriterOption {
	return func(o *writerOptions) { o.logger = l }
}

func WithWriterMetrics(m *metrics.Metrics) WriterOption {
	return func(o *writerOptions) { o.metrics = m }
}

// WriteOption tunes a single Write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	queueSeq    *uint64
	topicSeq    *uint64
	flush       bool
	encodeFlags []record.EncodeOption
}

// QueueSeq writes n as the queue sequence; auto-assignment resumes at n+1.
func QueueSeq(n uint64) WriteOption {
	return func(o *writeOptions) { o.queueSeq = &n }
}

// TopicSeq writes n as the topic sequence; auto-assignment for the topic
// resumes at n+1.
func TopicSeq(n uint64) WriteOption {
	return func(o *writeOptions) { o.topicSeq = &n }
}

// Flush flushes and syncs the file after the write.
func Flush() WriteOption {
	return func(o *writeOptions) { o.flush = true }
}

// NoCRC writes both checksum fields as 0.
func NoCRC() WriteOption {
	return func(o *writeOptions) { o.encodeFlags = append(o.encodeFlags, record.WithoutCRC()) }
}

// Writer appends framed records to a new log file. The file is created on the
// first write and never overwrites an existing path. A Writer is not safe
// for concurrent use.
type Writer struct {
	path string
	opts writerOptions

	file   File
	gz     *gzip.Writer
	bw     *bufio.Writer
	opened bool
	closed bool
	err    error

	nextQueueSeq uint64
	nextTopicSeq map[uint64]uint64
	count        uint64
	buf          []byte
	logger       logpkg.Logger
}

// NewWriter returns a writer for path. Nothing is created until the first write.
func NewWriter(path string, opts ...WriterOption) *Writer {
	w := &Writer{
		path: path,
		opts: writerOptions{storage: OSStorage{}, bufferSize: defaultWriteBuffer},
	}
	for _, opt := range opts {
		opt(&w.opts)
	}
	if w.opts.logger == nil {
		w.opts.logger = logpkg.NewNopLogger()
	}
	w.logger = w.opts.logger.With(logpkg.Component("logfile.writer"), logpkg.Path(path))
	w.nextQueueSeq = w.opts.nextQueueSeq
	w.nextTopicSeq = make(map[uint64]uint64)
	return w
}

// Create is NewWriter followed by an eager open, so ErrFileExists surfaces
// immediately.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	w := NewWriter(path, opts...)
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the destination path.
func (w *Writer) Path() string { return w.path }

// Count is the number of records written.
func (w *Writer) Count() uint64 { return w.count }

// NextQueueSeq is the queue sequence the next auto-assigned write will use.
func (w *Writer) NextQueueSeq() uint64 { return w.nextQueueSeq }

func (w *Writer) open() error {
	if w.opened {
		return nil
	}
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	f, err := w.opts.storage.Create(w.path)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			err = fmt.Errorf("%w: %s", ErrFileExists, w.path)
		} else {
			err = fmt.Errorf("create %s: %w", w.path, err)
		}
		w.err = err
		return err
	}
	w.file = f
	var dst io.Writer = f
	if w.opts.compression.resolve(w.path) == CompressionGzip {
		w.gz = gzip.NewWriter(f)
		dst = w.gz
	}
	w.bw = bufio.NewWriterSize(dst, w.opts.bufferSize)
	w.opened = true
	if _, err := w.bw.Write(Magic[:]); err != nil {
		w.err = fmt.Errorf("write magic: %w", err)
		return w.err
	}
	w.logger.Debug("log file created", logpkg.Str("compression", w.opts.compression.resolve(w.path).String()))
	return nil
}

// Write appends one record and returns it with its assigned sequences.
// Counters only advance when the write succeeds.
func (w *Writer) Write(topicID uint64, timestamp int64, data []byte, opts ...WriteOption) (record.Record, error) {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	rec := record.Record{
		QueueSeq:  w.nextQueueSeq,
		TopicID:   topicID,
		TopicSeq:  w.nextTopicSeq[topicID],
		Timestamp: timestamp,
		Data:      data,
	}
	if o.queueSeq != nil {
		rec.QueueSeq = *o.queueSeq
	}
	if o.topicSeq != nil {
		rec.TopicSeq = *o.topicSeq
	}
	if err := w.write(rec, o.encodeFlags); err != nil {
		return record.Record{}, err
	}
	w.nextQueueSeq = rec.QueueSeq + 1
	w.nextTopicSeq[topicID] = rec.TopicSeq + 1
	if o.flush {
		if err := w.Flush(); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// WriteRecord appends rec keeping its sequence numbers. Auto-assignment
// continues after them.
func (w *Writer) WriteRecord(rec record.Record) error {
	if err := w.write(rec, nil); err != nil {
		return err
	}
	if rec.QueueSeq >= w.nextQueueSeq {
		w.nextQueueSeq = rec.QueueSeq + 1
	}
	if rec.TopicSeq >= w.nextTopicSeq[rec.TopicID] {
		w.nextTopicSeq[rec.TopicID] = rec.TopicSeq + 1
	}
	return nil
}

func (w *Writer) write(rec record.Record, flags []record.EncodeOption) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.open(); err != nil {
		return err
	}
	w.buf = record.AppendEncode(w.buf[:0], rec, flags...)
	if _, err := w.bw.Write(w.buf); err != nil {
		w.err = fmt.Errorf("write record: %w", err)
		return w.err
	}
	w.count++
	w.opts.metrics.RecordWritten(len(w.buf))
	return nil
}

// Flush pushes buffered bytes through compression and syncs the file.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if !w.opened {
		return nil
	}
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	w.opts.metrics.Flushed()
	return nil
}

func (w *Writer) flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush buffer: %w", err)
	}
	if w.gz != nil {
		if err := w.gz.Flush(); err != nil {
			return fmt.Errorf("flush gzip: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the file. Calling Close again returns nil.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.opened {
		return nil
	}
	var errs []error
	if err := w.bw.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush buffer: %w", err))
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gzip: %w", err))
		}
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync %s: %w", w.path, err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}
	w.logger.Debug("log file closed", logpkg.Uint64("records", w.count))
	return errors.Join(errs...)
}
