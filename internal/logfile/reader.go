package logfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/rzbill/flolog/internal/metrics"
	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

type readState int

const (
	stateOpenFile readState = iota
	stateReadMagic
	stateReadLength
	stateReadRecord
	stateEOF
	stateFailed
	stateClosed
)

const readBufferSize = 64 << 10

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	storage     Storage
	compression Compression
	maxRecord   int
	logger      logpkg.Logger
	metrics     *metrics.Metrics
}

// WithStorage sets the backend used to open the path. Defaults to OSStorage.
func WithStorage(s Storage) ReaderOption {
	return func(o *readerOptions) { o.storage = s }
}

// WithCompression overrides suffix-based compression detection.
func WithCompression(c Compression) ReaderOption {
	return func(o *readerOptions) { o.compression = c }
}

// WithMaxRecordSize bounds the length field accepted from the stream.
func WithMaxRecordSize(n int) ReaderOption {
	return func(o *readerOptions) { o.maxRecord = n }
}

func WithReaderLogger(l logpkg.Logger) ReaderOption {
	return func(o *readerOptions) { o.logger = l }
}

func WithReaderMetrics(m *metrics.Metrics) ReaderOption {
	return func(o *readerOptions) { o.metrics = m }
}

// Reader decodes records sequentially from one log file with a single record
// of lookahead. It opens the file on first use. A Reader must not be used
// from more than one goroutine.
type Reader struct {
	path   string
	opts   readerOptions
	state  readState
	stream io.Reader

	src     io.Reader
	closers []io.Closer

	offset     int64 // uncompressed offset of the next unread byte
	frameStart int64
	length     uint64
	hdr        [record.LengthHeaderSize]byte
	buf        []byte

	peeked *record.Record
	err    error
	logger logpkg.Logger
}

// NewReader returns a reader for path. No I/O happens until Peek or Read.
func NewReader(path string, opts ...ReaderOption) *Reader {
	r := &Reader{path: path}
	r.init(opts)
	return r
}

// NewStreamReader reads from an already open stream. Compression is only
// applied when requested explicitly; the caller keeps ownership of s.
func NewStreamReader(s io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{stream: s}
	r.init(opts)
	return r
}

func (r *Reader) init(opts []ReaderOption) {
	r.opts = readerOptions{storage: OSStorage{}, maxRecord: record.DefaultMaxRecordSize}
	for _, opt := range opts {
		opt(&r.opts)
	}
	if r.opts.logger == nil {
		r.opts.logger = logpkg.NewNopLogger()
	}
	r.logger = r.opts.logger.With(logpkg.Component("logfile.reader"), logpkg.Path(r.path))
}

// Path returns the file path, empty for stream readers.
func (r *Reader) Path() string { return r.path }

// Offset is the uncompressed byte offset of the next frame to be decoded.
func (r *Reader) Offset() int64 {
	if r.peeked != nil {
		return r.frameStart
	}
	return r.offset
}

// Peek returns the next record without consuming it. It returns (nil, nil)
// once the stream is cleanly exhausted.
func (r *Reader) Peek() (*record.Record, error) {
	if r.peeked != nil {
		return r.peeked, nil
	}
	rec, err := r.next()
	if err != nil {
		return nil, err
	}
	r.peeked = rec
	return rec, nil
}

// Read returns and consumes the next record. It returns (nil, nil) once the
// stream is cleanly exhausted. An error matching record.ErrCRCRecord is
// returned once for a damaged record; the following call continues with the
// next frame. Any other error is sticky.
func (r *Reader) Read() (*record.Record, error) {
	rec, err := r.Peek()
	r.peeked = nil
	return rec, err
}

func (r *Reader) next() (*record.Record, error) {
	for {
		switch r.state {
		case stateOpenFile:
			if err := r.open(); err != nil {
				return nil, r.fail(err)
			}
			r.state = stateReadMagic

		case stateReadMagic:
			var magic [len(Magic)]byte
			n, err := io.ReadFull(r.src, magic[:])
			r.offset += int64(n)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return nil, r.fail(fmt.Errorf("%w: short header (%d bytes)", ErrInvalidMagic, n))
				}
				return nil, r.fail(fmt.Errorf("read magic: %w", err))
			}
			if magic != Magic {
				return nil, r.fail(fmt.Errorf("%w: %x", ErrInvalidMagic, magic[:]))
			}
			r.state = stateReadLength

		case stateReadLength:
			r.frameStart = r.offset
			n, err := io.ReadFull(r.src, r.hdr[:])
			r.offset += int64(n)
			if err != nil {
				if errors.Is(err, io.EOF) {
					r.state = stateEOF
					return nil, nil
				}
				if errors.Is(err, io.ErrUnexpectedEOF) {
					return nil, r.fail(r.corrupt(ErrTruncated))
				}
				return nil, r.fail(fmt.Errorf("read length header: %w", err))
			}
			length, err := record.DecodeLength(r.hdr[:], r.opts.maxRecord)
			if err != nil {
				return nil, r.fail(r.reoffset(err))
			}
			r.length = length
			r.state = stateReadRecord

		case stateReadRecord:
			need := int(r.length) + record.TrailerSize
			if cap(r.buf) < need {
				r.buf = make([]byte, need)
			}
			body := r.buf[:need]
			n, err := io.ReadFull(r.src, body)
			r.offset += int64(n)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return nil, r.fail(r.corrupt(ErrTruncated))
				}
				return nil, r.fail(fmt.Errorf("read record: %w", err))
			}
			r.state = stateReadLength
			rec, err := record.DecodeBody(r.length, body)
			if err != nil {
				r.opts.metrics.RecordCorrupt()
				r.logger.Warn("record checksum mismatch", logpkg.Int64("offset", r.frameStart))
				return nil, r.reoffset(err)
			}
			r.opts.metrics.RecordRead()
			return &rec, nil

		case stateEOF:
			return nil, nil

		case stateClosed:
			return nil, ErrClosed

		default:
			return nil, r.err
		}
	}
}

func (r *Reader) open() error {
	src := r.stream
	compression := r.opts.compression
	if src == nil {
		f, err := r.opts.storage.Open(r.path)
		if err != nil {
			return fmt.Errorf("open %s: %w", r.path, err)
		}
		r.closers = append(r.closers, f)
		src = f
		compression = compression.resolve(r.path)
	}
	src = bufio.NewReaderSize(src, readBufferSize)
	if compression == CompressionGzip {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("%w: gzip: %v", ErrInvalidMagic, err)
		}
		r.closers = append(r.closers, gz)
		src = gz
	}
	r.src = src
	return nil
}

func (r *Reader) corrupt(err error) error {
	return &record.CorruptionError{Err: err, Offset: r.frameStart}
}

// reoffset stamps codec errors with the reader's frame offset.
func (r *Reader) reoffset(err error) error {
	var ce *record.CorruptionError
	if errors.As(err, &ce) {
		return r.corrupt(ce.Err)
	}
	return err
}

func (r *Reader) fail(err error) error {
	r.state = stateFailed
	r.err = err
	r.logger.Error("log read failed", logpkg.Err(err))
	return err
}

// Close releases the underlying stream. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.state == stateClosed {
		return nil
	}
	r.state = stateClosed
	r.peeked = nil
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// ReadAll drains src, returning every record up to clean EOF.
func ReadAll(src interface {
	Read() (*record.Record, error)
}) ([]record.Record, error) {
	var out []record.Record
	for {
		rec, err := src.Read()
		if err != nil {
			return out, err
		}
		if rec == nil {
			return out, nil
		}
		out = append(out, *rec)
	}
}
