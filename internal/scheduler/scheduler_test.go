package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"
)

func TestShouldRun(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	interval := 30 * time.Minute

	tests := []struct {
		name    string
		lastRun time.Time
		want    bool
	}{
		{"never run", time.Time{}, true},
		{"interval elapsed", now.Add(-31 * time.Minute), true},
		{"exactly at interval", now.Add(-30 * time.Minute), true},
		{"not due yet", now.Add(-5 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRun(tt.lastRun, interval, now); got != tt.want {
				t.Errorf("ShouldRun(%v) = %v, want %v", tt.lastRun, got, tt.want)
			}
		})
	}
}

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	lastRun time.Time
	done    chan struct{}
}

func (r *fakeRunner) RunOnce(ctx context.Context) error {
	r.mu.Lock()
	r.runs++
	r.lastRun = time.Now()
	first := r.runs == 1
	r.mu.Unlock()
	if first {
		close(r.done)
	}
	return nil
}

func (r *fakeRunner) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

func (r *fakeRunner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestSchedulerRunsImmediately(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewImportScheduler(runner, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not run on start")
	}

	s.Stop()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if runner.Runs() != 1 {
		t.Errorf("runs = %d, want 1", runner.Runs())
	}
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{})}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewImportScheduler(runner, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	<-runner.done
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
}
