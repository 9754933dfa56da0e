package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzbill/flolog/internal/catalog"
	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/eventlog"
	"github.com/rzbill/flolog/internal/logfile"
	"github.com/rzbill/flolog/internal/merge"
	"github.com/rzbill/flolog/internal/metrics"
	"github.com/rzbill/flolog/internal/queue"
	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	"github.com/rzbill/flolog/pkg/id"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// ErrClosed is returned by Runtime methods after Close.
var ErrClosed = errors.New("runtime: closed")

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Registerer receives the Prometheus collectors. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Runtime wires storage, config and observability for one process.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics
	ids     *id.Generator

	dbOnce sync.Once
	db     *pebblestore.DB
	dbErr  error

	mu     sync.Mutex
	logs   map[string]*eventlog.Log
	closed bool
}

// Open validates the configuration and builds the runtime. The Pebble store
// is opened on first use so file-only commands never touch Store.DataDir.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&opts.Config.Log)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	return &Runtime{
		config:  opts.Config,
		logger:  logger,
		metrics: metrics.New(opts.Registerer),
		ids:     id.NewGenerator(),
		logs:    make(map[string]*eventlog.Log),
	}, nil
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

func (r *Runtime) Logger() logpkg.Logger { return r.logger }

func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// DB opens the Pebble store on first call.
func (r *Runtime) DB() (*pebblestore.DB, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	r.dbOnce.Do(func() {
		fsync, _ := pebblestore.ParseFsyncMode(r.config.Store.Fsync)
		r.db, r.dbErr = pebblestore.Open(pebblestore.Options{
			DataDir:       r.config.Store.DataDir,
			Fsync:         fsync,
			FsyncInterval: r.config.Store.FsyncInterval.Std(),
			Metrics:       r.metrics,
		})
		if r.dbErr == nil {
			r.logger.Info("store opened",
				logpkg.Path(r.config.Store.DataDir), logpkg.Str("fsync", fsync.String()))
		}
	})
	return r.db, r.dbErr
}

// CheckHealth verifies the store can be opened and iterated.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := r.DB()
	if err != nil {
		return err
	}
	it, err := db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// OpenLog returns the named event log, opening it once per runtime.
func (r *Runtime) OpenLog(name string) (*eventlog.Log, error) {
	db, err := r.DB()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if l, ok := r.logs[name]; ok {
		return l, nil
	}
	l, err := eventlog.OpenLog(db, name, eventlog.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	if _, err := catalog.Ensure(db, name); err != nil {
		return nil, err
	}
	r.logs[name] = l
	return l, nil
}

// Catalog lists every event log registered in the store.
func (r *Runtime) Catalog() ([]catalog.Meta, error) {
	db, err := r.DB()
	if err != nil {
		return nil, err
	}
	return catalog.List(db)
}

// SetRetention stores the retention policy of the named log.
func (r *Runtime) SetRetention(name string, retention time.Duration, maxBytes int64) (catalog.Meta, error) {
	if _, err := r.OpenLog(name); err != nil {
		return catalog.Meta{}, err
	}
	db, err := r.DB()
	if err != nil {
		return catalog.Meta{}, err
	}
	return catalog.SetRetention(db, name, retention, maxBytes)
}

// ApplyRetention trims the named log by its stored policy and returns the
// number of records removed. Logs without a policy are left untouched.
func (r *Runtime) ApplyRetention(ctx context.Context, name string, batch int, throttle time.Duration) (int, error) {
	l, err := r.OpenLog(name)
	if err != nil {
		return 0, err
	}
	db, err := r.DB()
	if err != nil {
		return 0, err
	}
	m, _, err := catalog.Get(db, name)
	if err != nil {
		return 0, err
	}
	total := 0
	if m.RetentionMs > 0 {
		cutoff := time.Now().Add(-m.Retention()).UnixNano()
		n, _, err := l.TrimOlderThan(ctx, cutoff, batch, throttle)
		total += n
		if err != nil {
			return total, err
		}
	}
	if m.MaxBytes > 0 {
		n, err := l.TrimToMaxBytes(ctx, m.MaxBytes, batch, throttle)
		total += n
		if err != nil {
			return total, err
		}
	}
	if total > 0 {
		r.logger.Info("retention applied", logpkg.Str("log", name), logpkg.Int("trimmed", total))
	}
	return total, nil
}

// NewQueue builds a queue using the configured buffer size; extra options
// are applied after the defaults.
func (r *Runtime) NewQueue(opts ...queue.Option) *queue.Queue {
	base := []queue.Option{
		queue.WithLogger(r.logger),
		queue.WithMetrics(r.metrics),
		queue.WithBufferSize(r.config.Archive.BufferSize),
	}
	return queue.New(append(base, opts...)...)
}

// ReaderOptions returns log file reader options derived from Config.Reader.
func (r *Runtime) ReaderOptions() []logfile.ReaderOption {
	return []logfile.ReaderOption{
		logfile.WithMaxRecordSize(r.config.Reader.MaxRecordBytes),
		logfile.WithReaderLogger(r.logger),
		logfile.WithReaderMetrics(r.metrics),
	}
}

// MergeFiles opens a merged reader over paths in the configured order,
// skipping corrupt records when Reader.SkipCorrupt is set.
func (r *Runtime) MergeFiles(paths ...string) (*merge.Reader, error) {
	order, err := merge.OrderByName(r.config.Reader.Order)
	if err != nil {
		return nil, err
	}
	m := merge.New(order, merge.WithLogger(r.logger))
	for _, p := range paths {
		var src merge.Source = logfile.NewReader(p, r.ReaderOptions()...)
		if r.config.Reader.SkipCorrupt {
			path := p
			src = merge.SkipCorrupt(src, func(err error) {
				r.logger.Warn("skipping corrupt record", logpkg.Path(path), logpkg.Err(err))
			})
		}
		if err := m.AddReader(src, nil); err != nil {
			_ = m.Close()
			return nil, err
		}
	}
	return m, nil
}

// FileArchive is a running archiver writing to a single log file.
type FileArchive struct {
	*queue.Archiver
	Path string
}

// StartFileArchiver attaches an archiver to q that writes to a new file in
// the configured archive directory (see config.Config.ArchiveDir).
func (r *Runtime) StartFileArchiver(q *queue.Queue, prefix string) (*FileArchive, error) {
	comp, err := logfile.ParseCompression(r.config.Archive.Compression)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(r.config.ArchiveDir(), id.ArchiveFileName(prefix, r.ids.Next(), comp == logfile.CompressionGzip))
	w, err := logfile.Create(path,
		logfile.WithWriterCompression(comp),
		logfile.WithWriterLogger(r.logger),
		logfile.WithWriterMetrics(r.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: archive file: %w", err)
	}
	a := q.StartArchiver(w,
		queue.WithFlushPeriod(r.config.Archive.FlushInterval.Std()),
		queue.WithArchiverLogger(r.logger),
	)
	r.logger.Info("archiver started", logpkg.Path(path))
	return &FileArchive{Archiver: a, Path: path}, nil
}

// StartLogArchiver attaches an archiver to q that appends to the named event log.
func (r *Runtime) StartLogArchiver(q *queue.Queue, name string) (*queue.Archiver, error) {
	l, err := r.OpenLog(name)
	if err != nil {
		return nil, err
	}
	return q.StartArchiver(logSink{l},
		queue.WithFlushPeriod(r.config.Archive.FlushInterval.Std()),
		queue.WithArchiverLogger(r.logger),
	), nil
}

// logSink keeps the event log open when the archiver finishes; the runtime
// owns its lifetime.
type logSink struct{ *eventlog.Log }

func (s logSink) Close() error { return s.Flush() }

// Close closes every opened log and then the store.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	logs := r.logs
	r.logs = nil
	r.mu.Unlock()

	var errs []error
	for _, l := range logs {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	// Block a concurrent first DB() from opening after this point.
	r.dbOnce.Do(func() { r.dbErr = ErrClosed })
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
