package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "relaybot/pkg/logx"
)

// Supervisor manages goroutines tied to a shared context:
// named goroutines, panic recovery, optional cancel-on-first-error
// and timeout-aware waiting.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	started  atomic.Uint64
	active   atomic.Int64
	restarts atomic.Uint64

	log         logx.Logger
	cancelOnErr bool
	errOnce     sync.Once
	firstErr    atomic.Value // error
	doneOnce    sync.Once
	doneCh      chan struct{}
	wg          sync.WaitGroup
}

type Option func(*Supervisor)

// Counters are operational signals only (not a synchronization primitive).
type Counters struct {
	Active   int64  `json:"active"`
	Started  uint64 `json:"started"`
	Restarts uint64 `json:"restarts"`
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first non-nil goroutine error cancel the supervisor context.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, doneCh: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting for goroutines to exit.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	err, _ := s.firstErr.Load().(error)
	return err
}

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	return Counters{Active: s.active.Load(), Started: s.started.Load(), Restarts: s.restarts.Load()}
}

func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				s.fail(fmt.Errorf("panic in %s: %v", name, r))
			}
		}()

		s.log.Debug("goroutine started", logx.String("name", name))
		if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff      time.Duration
	maxBackoff      time.Duration
	stopOnCleanExit bool
}

func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithStopOnCleanExit makes GoRestart stop (not restart) if fn returns nil. Default true.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(c *restartCfg) { c.stopOnCleanExit = enabled }
}

// GoRestart runs fn and restarts it on error or panic with jittered exponential
// backoff until the supervisor context is canceled.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second, stopOnCleanExit: true}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	s.Go0(name+".restart", func(ctx context.Context) {
		backoff := cfg.minBackoff
		for ctx.Err() == nil {
			startedAt := time.Now()
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("goroutine panicked (restart)", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
						err = fmt.Errorf("panic: %v", r)
					}
				}()
				return fn(ctx)
			}()

			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if err == nil {
				if cfg.stopOnCleanExit {
					return
				}
				err = errors.New("exited")
			}

			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := backoff
			if j := int64(wait) / 5; j > 0 {
				wait += time.Duration(time.Now().UnixNano() % (j + 1))
			}
			s.restarts.Add(1)
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	})
}

func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until all goroutines exit or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
	if s.cancelOnErr {
		s.cancel()
	}
}
