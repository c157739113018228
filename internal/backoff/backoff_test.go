package backoff

import (
	"context"
	"testing"
	"time"
)

func TestWaitReturnsAfterDelay(t *testing.T) {
	f := New(20 * time.Millisecond)
	start := time.Now()
	if err := f.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned after %v, want at least 20ms", elapsed)
	}
}

func TestWaitPreemptedByCancellation(t *testing.T) {
	f := New(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.Wait(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation did not preempt the wait")
	}
}
