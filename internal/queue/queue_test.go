package queue

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/flolog/internal/logfile"
	"github.com/rzbill/flolog/internal/merge"
	"github.com/rzbill/flolog/internal/record"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

type collector struct {
	mu   sync.Mutex
	recs []record.Record
}

func (c *collector) handle(rec record.Record) error {
	c.mu.Lock()
	c.recs = append(c.recs, rec)
	c.mu.Unlock()
	return nil
}

func (c *collector) seqs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.recs))
	for i, r := range c.recs {
		out[i] = r.QueueSeq
	}
	return out
}

func TestPublishStampsSequences(t *testing.T) {
	q := New(WithNextQueueSeq(10))
	var c collector
	q.Reader(c.handle)

	a := q.Writer(1)
	b := q.Writer(2, 100)
	for _, step := range []struct {
		w    *TopicWriter
		data string
	}{{a, "a0"}, {b, "b100"}, {a, "a1"}, {b, "b101"}} {
		_, err := step.w.Write(5, []byte(step.data))
		require.NoError(t, err)
	}

	require.Len(t, c.recs, 4)
	assert.Equal(t, []uint64{10, 11, 12, 13}, c.seqs())
	for _, r := range c.recs {
		assert.Equal(t, fmt.Sprintf("%c%d", 'a'+rune(r.TopicID-1), r.TopicSeq), string(r.Data))
	}
	assert.Equal(t, uint64(14), q.NextQueueSeq())
}

func TestPublishCopiesData(t *testing.T) {
	q := New()
	var c collector
	q.Reader(c.handle)
	buf := []byte("orig")
	_, err := q.Writer(1).Write(0, buf)
	require.NoError(t, err)
	buf[0] = 'X'
	assert.Equal(t, "orig", string(c.recs[0].Data))
}

func TestStopIsAppliedOnNextPublish(t *testing.T) {
	q := New()
	var keep, gone collector
	q.Reader(keep.handle)
	r := q.Reader(gone.handle)
	w := q.Writer(1)

	_, err := w.Write(0, nil)
	require.NoError(t, err)
	r.Stop()
	assert.Equal(t, 2, q.Len(), "removal waits for a publish")

	_, err = w.Write(0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, []uint64{0, 1}, keep.seqs())
	assert.Equal(t, []uint64{0}, gone.seqs())
}

func TestStopFromHandlerDuringDispatch(t *testing.T) {
	q := New()
	var second collector
	var victim *SyncReader
	q.Reader(func(rec record.Record) error {
		victim.Stop()
		return nil
	})
	victim = q.Reader(second.handle)

	_, err := q.Writer(1).Write(0, nil)
	require.NoError(t, err)
	assert.Empty(t, second.seqs())
	assert.Equal(t, 2, q.Len())
}

func TestHandlerErrorsAreLoggedByDefault(t *testing.T) {
	var out bytes.Buffer
	logger := logpkg.NewLogger(
		logpkg.WithOutput(&logpkg.ConsoleOutput{W: &out}),
		logpkg.WithFormatter(&logpkg.TextFormatter{DisableTimestamp: true}),
	)
	q := New(WithLogger(logger))
	var after collector
	q.Reader(func(record.Record) error { return errors.New("bad handler") })
	q.Reader(after.handle)

	_, err := q.Writer(1).Write(0, nil)
	require.NoError(t, err)
	assert.Len(t, after.recs, 1)
	assert.Contains(t, out.String(), "bad handler")
}

func TestPropagateReturnsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	q := New(WithPropagate(true))
	q.Reader(func(record.Record) error { return boom })
	w := q.Writer(3)

	rec, err := w.Write(0, []byte("x"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(0), rec.QueueSeq)

	rec, err = w.Write(0, []byte("y"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), rec.TopicSeq, "the record was still published")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	q := New(WithPropagate(true))
	var after collector
	q.Reader(func(record.Record) error { panic("kaboom") })
	q.Reader(after.handle)

	_, err := q.Writer(1).Write(0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Len(t, after.recs, 1)
}

func TestThreadedReaderRun(t *testing.T) {
	q := New()
	var c collector
	r := q.ThreadedReader(c.handle)
	r.Start()

	w := q.Writer(1)
	for i := 0; i < 2000; i++ {
		_, err := w.Write(int64(i), nil)
		require.NoError(t, err)
	}
	r.Stop()
	require.NoError(t, r.Wait())

	seqs := c.seqs()
	require.Len(t, seqs, 2000)
	for i, s := range seqs {
		require.Equal(t, uint64(i), s)
	}
}

func TestThreadedStopFromFullHandler(t *testing.T) {
	q := New(WithBufferSize(1))
	var c collector
	gate := make(chan struct{})
	var r *ThreadedReader
	r = q.ThreadedReader(func(rec record.Record) error {
		if rec.QueueSeq == 0 {
			<-gate
			r.Stop()
		}
		return c.handle(rec)
	})
	w := q.Writer(1)
	_, err := w.Write(0, nil)
	require.NoError(t, err)
	r.Start()

	_, err = w.Write(0, nil)
	require.NoError(t, err)
	close(gate)

	require.NoError(t, r.Wait())
	assert.Equal(t, []uint64{0, 1}, c.seqs())
}

func TestThreadedPropagateEndsRun(t *testing.T) {
	q := New(WithPropagate(true))
	boom := errors.New("boom")
	r := q.ThreadedReader(func(record.Record) error { return boom })
	_, err := q.Writer(1).Write(0, nil)
	require.NoError(t, err, "threaded errors do not reach the publisher")

	r.Start()
	require.ErrorIs(t, r.Wait(), boom)
	assert.True(t, r.Stopped())
}

func TestThreadedErrReadableWhileConsuming(t *testing.T) {
	q := New()
	boom := errors.New("boom")
	r := q.ThreadedReader(func(record.Record) error { return boom })
	r.Start()

	// Err is polled from the publishing goroutine while the consumer records
	// failures; run with -race.
	w := q.Writer(1)
	for i := 0; i < 500; i++ {
		_, err := w.Write(int64(i), nil)
		require.NoError(t, err)
		if err := r.Err(); err != nil {
			require.ErrorIs(t, err, boom)
		}
	}
	r.Stop()
	require.NoError(t, r.Wait())
	require.ErrorIs(t, r.Err(), boom)
}

func TestStopWithFullFIFOAndNoConsumer(t *testing.T) {
	q := New(WithBufferSize(1))
	var c collector
	r := q.ThreadedReader(c.handle)
	_, err := q.Writer(1).Write(0, nil)
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop blocked on a full FIFO")
	}

	n, ended := r.DrainFor(time.Second)
	assert.Equal(t, 1, n)
	assert.True(t, ended)
	assert.Equal(t, []uint64{0}, c.seqs())
}

func TestDrainFor(t *testing.T) {
	q := New()
	var c collector
	r := q.ThreadedReader(c.handle)

	n, stopped := r.DrainFor(5 * time.Millisecond)
	assert.Equal(t, 0, n)
	assert.False(t, stopped)

	w := q.Writer(1)
	for i := 0; i < 3; i++ {
		_, err := w.Write(0, nil)
		require.NoError(t, err)
	}
	r.Stop()
	n, stopped = r.DrainFor(time.Second)
	assert.Equal(t, 3, n)
	assert.True(t, stopped)

	n, stopped = r.DrainFor(time.Second)
	assert.Equal(t, 0, n)
	assert.True(t, stopped)
}

func TestThreadedReaderAsMergeSource(t *testing.T) {
	q1, q2 := New(), New()
	r1, r2 := q1.ThreadedReader(nil), q2.ThreadedReader(nil)
	for _, ts := range []int64{1, 4} {
		_, err := q1.Writer(1).Write(ts, nil)
		require.NoError(t, err)
	}
	for _, ts := range []int64{2, 3} {
		_, err := q2.Writer(2).Write(ts, nil)
		require.NoError(t, err)
	}
	r1.Stop()
	r2.Stop()

	m := merge.New(merge.ByTimestamp)
	require.NoError(t, m.AddReader(r1, nil))
	require.NoError(t, m.AddReader(r2, nil))
	var got []int64
	for {
		rec, err := m.Read()
		require.NoError(t, err)
		if rec == nil {
			break
		}
		got = append(got, rec.Timestamp)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, got)
}

func TestClosedQueue(t *testing.T) {
	q := New()
	r := q.ThreadedReader(nil)
	q.Close()
	assert.True(t, r.Stopped())
	_, err := q.Writer(1).Write(0, nil)
	require.ErrorIs(t, err, ErrClosed)

	rec, err := r.Read()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestArchiverWritesEveryRecordOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.log.gz")
	q := New(WithBufferSize(16))
	a := q.StartArchiver(logfile.NewWriter(path), WithFlushPeriod(2*time.Millisecond))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for topic := uint64(1); topic <= 4; topic++ {
		wg.Add(1)
		go func(w *TopicWriter) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_, err := w.Write(int64(i), []byte(strings.Repeat("x", i%7)))
				if err != nil {
					mu.Lock()
					t.Errorf("write: %v", err)
					mu.Unlock()
					return
				}
			}
		}(q.Writer(topic))
	}
	wg.Wait()
	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	assert.True(t, a.IsStopped())

	got, err := logfile.ReadAll(logfile.NewReader(path))
	require.NoError(t, err)
	require.Len(t, got, 1000)
	next := map[uint64]uint64{}
	for i, r := range got {
		require.Equal(t, uint64(i), r.QueueSeq)
		require.Equal(t, next[r.TopicID], r.TopicSeq)
		next[r.TopicID]++
	}
	stats := a.Stats()
	assert.Equal(t, uint64(1000), stats.Records)
	assert.GreaterOrEqual(t, stats.Flushes, uint64(1))
}

func TestArchiverStopWithoutRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.log")
	q := New()
	a := q.StartArchiver(logfile.NewWriter(path), WithFlushPeriod(time.Millisecond))
	require.NoError(t, a.Stop())
	assert.Equal(t, uint64(0), a.Stats().Records)
}

type failingSink struct{ writes int }

func (s *failingSink) WriteRecord(record.Record) error {
	s.writes++
	return errors.New("disk full")
}
func (s *failingSink) Flush() error { return nil }
func (s *failingSink) Close() error { return nil }

func TestArchiverReturnsFirstError(t *testing.T) {
	q := New()
	sink := &failingSink{}
	a := q.StartArchiver(sink, WithFlushPeriod(time.Millisecond))
	w := q.Writer(1)
	for i := 0; i < 3; i++ {
		_, err := w.Write(0, nil)
		require.NoError(t, err)
	}
	err := a.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 3, sink.writes)
	assert.Equal(t, uint64(3), a.Stats().Errors)
}
