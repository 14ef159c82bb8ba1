package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/internal/notifier"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const DefaultSchedule = "0 */6 * * *"

type Config struct {
	Enabled  bool
	Schedule string // standard 5-field cron or a descriptor such as "@every 1h"
	Timezone string
	Target   kit.ChatTarget
}

// Enqueuer is the part of notifier.Service the report needs.
type Enqueuer interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// Scheduler posts the status text to the notify chat on a cron schedule.
type Scheduler struct {
	// applyMu serializes Apply and Stop; mu guards cfg and cron.
	applyMu sync.Mutex
	mu      sync.Mutex

	log  logx.Logger
	q    Enqueuer
	snap func() Snapshot

	cfg  Config
	cron *cron.Cron
}

func NewScheduler(q Enqueuer, snap func() Snapshot, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{q: q, snap: snap, log: log}
}

// ParseSchedule validates a schedule expression in the given timezone.
func ParseSchedule(spec, tz string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSchedule
	}
	if tz = strings.TrimSpace(tz); tz != "" {
		spec = "CRON_TZ=" + tz + " " + spec
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("report schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Apply (re)starts the cron runner for cfg. A disabled config or an empty
// target stops it.
func (s *Scheduler) Apply(cfg Config) error {
	var sched cron.Schedule
	if cfg.Enabled && !cfg.Target.IsZero() {
		var err error
		if sched, err = ParseSchedule(cfg.Schedule, cfg.Timezone); err != nil {
			return err
		}
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	// A running job takes s.mu in Run, so the old runner is stopped unlocked.
	s.mu.Lock()
	old := s.cron
	s.cron = nil
	s.cfg = cfg
	s.mu.Unlock()
	if old != nil {
		<-old.Stop().Done()
	}
	if sched == nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})))
	c.Schedule(sched, cron.FuncJob(s.Run))
	c.Start()
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	s.log.Info("status report scheduled",
		logx.String("schedule", cfg.Schedule),
		logx.String("timezone", cfg.Timezone),
		logx.Time("next", sched.Next(time.Now())),
	)
	return nil
}

// Run sends one report now.
func (s *Scheduler) Run() {
	s.mu.Lock()
	target := s.cfg.Target
	s.mu.Unlock()
	if target.IsZero() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.q.Notify(ctx, notifier.Notification{
		Kind:    "report",
		Target:  target,
		Text:    Text(s.snap()),
		Options: &kit.SendOptions{DisablePreview: true},
	})
	if err != nil {
		s.log.Warn("status report not queued", logx.Err(err))
	}
}

func (s *Scheduler) Stop() {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
