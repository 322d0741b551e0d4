package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartCleanupScheduler_RunsUntilCancelled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		svc.StartCleanupScheduler(ctx, 5*time.Millisecond, time.Hour, func(deleted int64, err error) {
			if err != nil {
				t.Errorf("cleanup error: %v", err)
			}
			runs.Add(1)
		})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("scheduler ran %d times, want at least 2", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
