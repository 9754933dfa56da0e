package eventlog

import (
	"context"
	"testing"

	"github.com/rzbill/flolog/internal/record"
)

type captureArchiver struct {
	log    string
	ranges [][2]uint64
}

func (c *captureArchiver) EmitTrimRange(log string, minSeq, maxSeq uint64) {
	c.log = log
	c.ranges = append(c.ranges, [2]uint64{minSeq, maxSeq})
}

func TestTrimOlderThanByTimestamp(t *testing.T) {
	l := newTestLog(t)
	recs := []record.Record{rec(1, 1000, "a"), rec(1, 5000, "b"), rec(1, 10_000, "c")}
	if _, err := l.Append(context.Background(), recs); err != nil {
		t.Fatalf("append: %v", err)
	}

	del, last, err := l.TrimOlderThan(context.Background(), 9999, 10, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if del != 2 || last != 2 {
		t.Fatalf("expected 2 deleted up to seq 2, got %d up to %d", del, last)
	}
	items, _ := mustRead(t, l, ReadOptions{})
	if len(items) != 1 || string(items[0].Record.Data) != "c" {
		t.Fatalf("unexpected survivors: %+v", items)
	}
}

func TestTrimStopsAtFirstNewerEntry(t *testing.T) {
	l := newTestLog(t)
	recs := []record.Record{rec(1, 1, "old"), rec(1, 100, "new"), rec(1, 2, "late-old")}
	if _, err := l.Append(context.Background(), recs); err != nil {
		t.Fatalf("append: %v", err)
	}
	del, _, err := l.TrimOlderThan(context.Background(), 50, 0, 0)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if del != 1 {
		t.Fatalf("expected only the leading entry trimmed, got %d", del)
	}
}

func TestTrimToMaxBytes(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 3; i++ {
		if _, err := l.Append(context.Background(), []record.Record{rec(1, int64(i), "0123456789")}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	frame := int64(record.Record{Data: []byte("0123456789")}.FrameSize())
	del, err := l.TrimToMaxBytes(context.Background(), frame+frame/2, 10, 0)
	if err != nil {
		t.Fatalf("trim bytes: %v", err)
	}
	if del != 2 {
		t.Fatalf("expected 2 deletions, got %d", del)
	}
	size, err := l.SizeBytes()
	if err != nil || size != frame {
		t.Fatalf("size after trim: %d %v", size, err)
	}
	if del, _ := l.TrimToMaxBytes(context.Background(), frame, 10, 0); del != 0 {
		t.Fatalf("already under budget, deleted %d", del)
	}
}

func TestArchiverHookEmittedPerBatch(t *testing.T) {
	c := &captureArchiver{}
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	l, err := OpenLog(db, "hooked", WithArchiverHook(c))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	var recs []record.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, rec(1, int64(i), "x"))
	}
	if _, err := l.Append(context.Background(), recs); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, _, err := l.TrimOlderThan(context.Background(), 4, 2, 0); err != nil {
		t.Fatalf("trim: %v", err)
	}
	want := [][2]uint64{{1, 2}, {3, 4}}
	if c.log != "hooked" || len(c.ranges) != 2 || c.ranges[0] != want[0] || c.ranges[1] != want[1] {
		t.Fatalf("unexpected hook ranges: %s %v", c.log, c.ranges)
	}
}

func TestArchiverHookEmittedOnBytesTrim(t *testing.T) {
	l := newTestLog(t)
	c := &captureArchiver{}
	l.SetArchiverHook(c)
	for i := 0; i < 3; i++ {
		if _, err := l.Append(context.Background(), []record.Record{rec(1, 0, "0123456789")}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := l.TrimToMaxBytes(context.Background(), 15, 10, 0); err != nil {
		t.Fatalf("trim: %v", err)
	}
	if len(c.ranges) != 1 || c.ranges[0][0] != 1 {
		t.Fatalf("expected archiver hook called on bytes trim, got %v", c.ranges)
	}
}
