package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rzbill/flolog/internal/record"
)

func TestWaitForAppendWake(t *testing.T) {
	l := newTestLog(t)

	done := make(chan struct{})
	go func() {
		if !l.WaitForAppend(2 * time.Second) {
			t.Errorf("expected wake by append")
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := l.Append(context.Background(), []record.Record{rec(1, 1, "x")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for waiter to wake")
	}
}

func TestWaitForAppendTimeout(t *testing.T) {
	l := newTestLog(t)
	if l.WaitForAppend(50 * time.Millisecond) {
		t.Fatalf("expected timeout")
	}
}

func TestFlushWakesWaiters(t *testing.T) {
	l := newTestLog(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- l.WaitForAppendContext(ctx) }()
	time.Sleep(20 * time.Millisecond)
	if err := l.WriteRecord(rec(1, 1, "x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitForAppendContextCancel(t *testing.T) {
	l := newTestLog(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.WaitForAppendContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
}
