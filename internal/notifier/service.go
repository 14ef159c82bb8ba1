package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"relaybot/internal/eventbus"
	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historyMax = 100

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Notification
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps rate and retry settings live. Workers and QueueSize take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent. It does nothing when the service is disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// notifier failures should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("notifier.worker.%d", i)
		sup.GoRestart(name, func(c context.Context) error {
			s.workerLoop(c, q)
			// Clean exits happen on shutdown (queue close).
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		})
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers can drain.
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force-stop workers; pending sends are abandoned.
		sup.Cancel()
	}
}

// Notify enqueues n. It never blocks on delivery.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if n.Target.IsZero() || n.Text == "" {
		return errors.New("notifier: empty target or text")
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- n:
		return nil
	default:
		s.publish(eventbus.TypeNotifyDropped, n, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(n Notification) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Kind: n.Kind, Text: n.Text})
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, n Notification) {
	// config snapshot for this send
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if s.sender == nil {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(runCtx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		_, err := s.sender.SendText(callCtx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			s.appendHistory(n)
			s.publish(eventbus.TypeNotifySent, n, attempt, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}

	s.log.Warn("notification not delivered",
		logx.String("kind", n.Kind),
		logx.String("target", n.Target.String()),
		logx.Int("attempts", min(attempt, maxAttempts)),
		logx.Err(lastErr),
	)
	s.publish(eventbus.TypeNotifyFailed, n, min(attempt, maxAttempts), lastErr)
}

func (s *Service) publish(typ string, n Notification, tries int, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := Event{Kind: n.Kind, Target: n.Target.String(), At: now, Tries: tries}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	maxD := cfg.RetryMaxDelay
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	return min(d, maxD)
}
