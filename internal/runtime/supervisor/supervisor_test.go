package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v, want wrapped %v", err, boom)
	}
	if s.Context().Err() == nil {
		t.Fatal("expected supervisor context to be canceled")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("panicky", func(ctx context.Context) error { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if c := s.Counters(); c.Active != 0 || c.Started != 1 {
		t.Fatalf("unexpected counters: %+v", c)
	}
}

func TestGoRestartRestartsUntilClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	if got := s.Counters().Restarts; got != 2 {
		t.Fatalf("restarts = %d, want 2", got)
	}
}

func TestStopWaitsForGoroutines(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var stopped atomic.Bool
	s.Go0("loop", func(ctx context.Context) {
		<-ctx.Done()
		stopped.Store(true)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if !stopped.Load() {
		t.Fatal("goroutine did not observe cancellation")
	}
}
