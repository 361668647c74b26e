package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type countingProcessor struct {
	mu     sync.Mutex
	calls  int
	limits []int
	err    error
}

func (c *countingProcessor) ProcessPending(ctx context.Context, limit int) (SweepResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.limits = append(c.limits, limit)
	return SweepResult{Processed: 1}, c.err
}

func (c *countingProcessor) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestWorkerSweepsOnInterval(t *testing.T) {
	proc := &countingProcessor{}
	w := NewWorker(proc, 5*time.Millisecond, 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for proc.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatal("worker never reached 3 sweeps")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	proc.mu.Lock()
	defer proc.mu.Unlock()
	for _, l := range proc.limits {
		if l != 7 {
			t.Errorf("sweep limit = %d, want 7", l)
		}
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	proc := &countingProcessor{}
	w := NewWorker(proc, time.Hour, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
	if proc.callCount() != 0 {
		t.Errorf("sweeps ran before the first tick: %d", proc.calls)
	}
}

func TestWorkerContinuesAfterSweepError(t *testing.T) {
	proc := &countingProcessor{err: fmt.Errorf("db locked")}
	w := NewWorker(proc, 5*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for proc.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("worker stopped after an error")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestNewWorkerDefaultInterval(t *testing.T) {
	w := NewWorker(&countingProcessor{}, 0, 1)
	if w.interval != 5*time.Minute {
		t.Errorf("interval = %v", w.interval)
	}
}
