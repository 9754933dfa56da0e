package id

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock pins NowMs for the duration of a test.
func fakeClock(t *testing.T, start int64) *atomic.Int64 {
	t.Helper()
	var now atomic.Int64
	now.Store(start)
	prev := NowMs
	NowMs = now.Load
	t.Cleanup(func() { NowMs = prev })
	return &now
}

func TestNextIsMonotonicWithinMillisecond(t *testing.T) {
	fakeClock(t, 1000)
	g := NewGenerator()

	a, b := g.Next(), g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected %s < %s", a, b)
	}
	if a.Sequence() != 0 || b.Sequence() != 1 {
		t.Fatalf("sequences: %d %d", a.Sequence(), b.Sequence())
	}
	if a.Time().UnixMilli() != 1000 {
		t.Fatalf("time: %v", a.Time())
	}
}

func TestNextSurvivesClockRegression(t *testing.T) {
	now := fakeClock(t, 1000)
	g := NewGenerator()

	a := g.Next()
	now.Store(900)
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b > a after clock went backwards")
	}
	if b.Time().UnixMilli() != 1000 {
		t.Fatalf("regressed id should keep last ms, got %d", b.Time().UnixMilli())
	}
}

func TestSequenceOverflowWaitsForNextMillisecond(t *testing.T) {
	now := fakeClock(t, 2000)
	g := NewGenerator()
	g.lastMs = 2000
	g.sequence = ^uint64(0) - 1
	_ = g.Next()

	got := make(chan ID, 1)
	go func() { got <- g.Next() }()
	time.AfterFunc(10*time.Millisecond, func() { now.Store(2001) })

	select {
	case id := <-got:
		if id.Time().UnixMilli() != 2001 || id.Sequence() != 0 {
			t.Fatalf("want seq 0 at 2001, got %d at %d", id.Sequence(), id.Time().UnixMilli())
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for overflow handling")
	}
}

func TestParse(t *testing.T) {
	fakeClock(t, 1234)
	want := NewGenerator().Next()

	got, err := Parse(want.String())
	if err != nil || got != want {
		t.Fatalf("parse %q: %v %v", want.String(), got, err)
	}
	for _, bad := range []string{"", "abc", want.String()[:30] + "zz", want.String() + "00"} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalid) {
			t.Fatalf("parse %q: want ErrInvalid, got %v", bad, err)
		}
	}
}
