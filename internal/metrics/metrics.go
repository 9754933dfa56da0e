// Package metrics exposes Prometheus collectors for the record log, the
// in-process queue and the Pebble store. A nil *Metrics is valid and records
// nothing, so components take one optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flolog"

// Metrics groups every collector flolog reports.
type Metrics struct {
	RecordsWritten prometheus.Counter
	BytesWritten   prometheus.Counter
	RecordsRead    prometheus.Counter
	CorruptRecords prometheus.Counter
	Flushes        prometheus.Counter
	Published      prometheus.Counter
	HandlerErrors  *prometheus.CounterVec
	StorageLatency *prometheus.HistogramVec
	StorageBytes   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "records_total",
			Help: "Records appended to log files.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "bytes_total",
			Help: "Framed bytes appended to log files, before compression.",
		}),
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reader", Name: "records_total",
			Help: "Records decoded from log files.",
		}),
		CorruptRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reader", Name: "corrupt_records_total",
			Help: "Records that failed their checksum.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writer", Name: "flushes_total",
			Help: "Writer flush+sync calls.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "published_total",
			Help: "Records published to in-process queues.",
		}),
		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "handler_errors_total",
			Help: "Reader handler failures caught at the dispatch boundary.",
		}, []string{"reader"}),
		StorageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "op_seconds",
			Help:    "Pebble operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		StorageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "bytes_total",
			Help: "Bytes moved through Pebble operations.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsWritten, m.BytesWritten, m.RecordsRead, m.CorruptRecords,
		m.Flushes, m.Published, m.HandlerErrors, m.StorageLatency, m.StorageBytes,
	}
}

func (m *Metrics) RecordWritten(frameBytes int) {
	if m == nil {
		return
	}
	m.RecordsWritten.Inc()
	m.BytesWritten.Add(float64(frameBytes))
}

func (m *Metrics) RecordRead() {
	if m == nil {
		return
	}
	m.RecordsRead.Inc()
}

func (m *Metrics) RecordCorrupt() {
	if m == nil {
		return
	}
	m.CorruptRecords.Inc()
}

func (m *Metrics) Flushed() {
	if m == nil {
		return
	}
	m.Flushes.Inc()
}

func (m *Metrics) RecordPublished() {
	if m == nil {
		return
	}
	m.Published.Inc()
}

func (m *Metrics) HandlerFailed(reader string) {
	if m == nil {
		return
	}
	m.HandlerErrors.WithLabelValues(reader).Inc()
}

// ObserveWrite, ObserveRead and ObserveBatchCommit satisfy the Pebble store
// metrics hook.
func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.observeStore("write", elapsed, bytes)
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.observeStore("read", elapsed, bytes)
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.observeStore("commit", elapsed, bytes)
}

func (m *Metrics) observeStore(op string, elapsed time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.StorageLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	m.StorageBytes.WithLabelValues(op).Add(float64(bytes))
}
