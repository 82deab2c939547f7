package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(Options{Min: 2, Max: 4, QueueSize: 8})
	defer p.Close()

	var done atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), "test.job", func(context.Context) {
			done.Add(1)
			wg.Done()
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()
	if got := done.Load(); got != 10 {
		t.Fatalf("expected 10 jobs executed, got %d", got)
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool(Options{Min: 1, Max: 1, QueueSize: 1})
	p.Close()
	err := p.Submit(context.Background(), "test.job", func(context.Context) {})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestPoolDispatchRunsOnCallerWhenSaturated(t *testing.T) {
	p := NewPool(Options{Min: 1, Max: 1, QueueSize: 1})
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	// occupy the only worker
	if err := p.Submit(context.Background(), "block", func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started
	// fill the backlog
	if err := p.Submit(context.Background(), "queued", func(context.Context) {}); err != nil {
		t.Fatalf("submit queued: %v", err)
	}

	var inline atomic.Bool
	doneCh := make(chan struct{})
	go func() {
		p.Dispatch(context.Background(), "overflow", func(context.Context) {
			inline.Store(true)
		})
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not fall back to caller")
	}
	if !inline.Load() {
		t.Fatal("expected overflow job to run inline")
	}
	close(release)
}

func TestPoolGrowsTowardMax(t *testing.T) {
	p := NewPool(Options{Min: 1, Max: 3, QueueSize: 1})
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	blocker := func(context.Context) {
		started <- struct{}{}
		<-release
	}

	// first job occupies the core worker, second fills the queue,
	// third forces an extra worker to spawn
	for i := 0; i < 3; i++ {
		if err := p.Submit(context.Background(), "grow", blocker); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	deadline := time.After(2 * time.Second)
	running := 0
	for running < 2 {
		select {
		case <-started:
			running++
		case <-deadline:
			t.Fatalf("expected at least 2 concurrent jobs, saw %d", running)
		}
	}
	if p.Live() < 2 {
		t.Fatalf("expected pool to grow, live=%d", p.Live())
	}
	close(release)
}
