package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordWritten(10)
	m.RecordRead()
	m.RecordCorrupt()
	m.Flushed()
	m.RecordPublished()
	m.HandlerFailed("sync")
	m.ObserveWrite(time.Millisecond, 3)
}

func TestCountersAndRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordWritten(48)
	m.RecordWritten(52)
	m.RecordCorrupt()
	m.HandlerFailed("archiver")
	m.ObserveBatchCommit(time.Millisecond, 1, 128)

	if got := testutil.ToFloat64(m.RecordsWritten); got != 2 {
		t.Fatalf("records written: got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesWritten); got != 100 {
		t.Fatalf("bytes written: got %v", got)
	}
	if got := testutil.ToFloat64(m.CorruptRecords); got != 1 {
		t.Fatalf("corrupt: got %v", got)
	}
	if got := testutil.ToFloat64(m.HandlerErrors.WithLabelValues("archiver")); got != 1 {
		t.Fatalf("handler errors: got %v", got)
	}
	if got := testutil.ToFloat64(m.StorageBytes.WithLabelValues("commit")); got != 128 {
		t.Fatalf("store bytes: got %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected registered families")
	}
}
