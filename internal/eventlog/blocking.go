package eventlog

import (
	"context"
	"time"
)

// WaitForAppend blocks until an append or flush commits, or timeout elapses.
// It returns true if woken by a commit. A timeout <= 0 waits indefinitely.
func (l *Log) WaitForAppend(timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// WaitForAppendContext is WaitForAppend bounded by ctx instead of a timeout.
func (l *Log) WaitForAppendContext(ctx context.Context) error {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
