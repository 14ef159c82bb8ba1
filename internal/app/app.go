package app

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"relaybot/internal/config"
	"relaybot/internal/eventbus"
	"relaybot/internal/metrics"
	"relaybot/internal/notifier"
	"relaybot/internal/ops"
	"relaybot/internal/relay"
	"relaybot/internal/report"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/sinks"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	logx "relaybot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter    *telegram.Adapter
	store      *relay.DedupStore
	tracker    *relay.Tracker
	dispatcher *relay.Dispatcher
	fanout     *relay.Fanout
	loop       *relay.Loop

	chat    *sinks.ChatSink
	kafka   *sinks.KafkaSink
	notif   *notifier.Service
	metrics *metrics.Metrics
	ops     *ops.Service
	report  *report.Scheduler
	cmds    *commandHandler

	updates  chan kit.Update
	events   chan kit.InboundEvent
	loopDone chan struct{}
	ready    atomic.Bool
}

// NewApp loads the config and wires every component. Nothing runs until Start.
// A missing required setting is returned wrapped in config.ErrConfigMissing.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(acfg, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	journal, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open dedup journal: %w", err)
	}
	store, err := relay.OpenDedupStore(ctx, journal, log.With(logx.String("comp", "dedup")))
	if err != nil {
		_ = journal.Close()
		return nil, err
	}
	log.Info("dedup store loaded", logx.String("driver", sc.Driver), logx.Int("known", store.Len()))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)

	tracker := relay.NewTracker(time.Now())
	m := metrics.New(tracker, store.Len)
	chat := sinks.NewChatSink(notif, notifyTarget(cfg), cfg.Notify.NotifyDuplicates)
	sinkList := []relay.Sink{sinks.NewLogSink(log.With(logx.String("comp", "outcome"))), chat, m}
	if cfg.Notify.Journal {
		if js := sinks.NewJournalSink(); js != nil {
			sinkList = append(sinkList, js)
		} else {
			log.Warn("notify.journal is set but journald is not reachable; journal sink disabled")
		}
	}
	var kafkaSink *sinks.KafkaSink
	if cfg.Notify.Kafka.Enabled() {
		kafkaSink = sinks.NewKafkaSink(mapKafkaConfig(cfg))
		sinkList = append(sinkList, kafkaSink)
	}
	fanout := relay.NewFanout(log.With(logx.String("comp", "fanout")), sinkTimeout(cfg), sinkList...)

	filter, extractor, err := relayPipeline(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dispatcher := relay.NewDispatcher(ad, destination(cfg))
	loop, err := relay.NewLoop(relay.Deps{
		Filter:     filter,
		Extractor:  extractor,
		Store:      store,
		Dispatcher: dispatcher,
		Fanout:     fanout,
		Status:     tracker,
		Bus:        bus,
		Logger:     log.With(logx.String("comp", "relay")),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	updatesBuf := cfg.Telegram.UpdatesBuffer
	if updatesBuf <= 0 {
		updatesBuf = 256
	}

	a := &App{
		cfgm:       cfgm,
		log:        log.With(logx.String("comp", "app")),
		logs:       logSvc,
		bus:        bus,
		adapter:    ad,
		store:      store,
		tracker:    tracker,
		dispatcher: dispatcher,
		fanout:     fanout,
		loop:       loop,
		chat:       chat,
		kafka:      kafkaSink,
		notif:      notif,
		metrics:    m,
		updates:    make(chan kit.Update, updatesBuf),
		events:     make(chan kit.InboundEvent, 16),
	}
	a.ops = ops.New(mapOpsConfig(cfg), ops.Deps{
		Status:  func() any { return a.statusView() },
		Ready:   a.ready.Load,
		Metrics: a.metrics.Handler(),
	}, log.With(logx.String("comp", "ops")))
	a.report = report.NewScheduler(notif, a.snapshot, log.With(logx.String("comp", "report")))
	a.cmds = newCommandHandler(ad, a.snapshot, cfg.Telegram.OwnerUserIDs, log.With(logx.String("comp", "commands")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) snapshot() report.Snapshot {
	return report.Snapshot{
		Status:       a.tracker.Snapshot(),
		Channels:     a.loop.Channels(),
		Destination:  a.dispatcher.Destination().String(),
		ProcessedSet: a.store.Len(),
		Now:          time.Now(),
	}
}

type statusView struct {
	relay.Status
	State         string                 `json:"state"`
	Uptime        string                 `json:"uptime"`
	Channels      []string               `json:"channels"`
	Pattern       string                 `json:"pattern"`
	Destination   string                 `json:"destination"`
	Known         int                    `json:"known_identifiers"`
	Sinks         []string               `json:"sinks"`
	Notifications []notifier.HistoryItem `json:"notifications,omitempty"`
}

func (a *App) statusView() statusView {
	st := a.tracker.Snapshot()
	return statusView{
		Status:        st,
		State:         a.loop.State().String(),
		Uptime:        st.Uptime(time.Now()).String(),
		Channels:      a.loop.Channels(),
		Pattern:       a.loop.Pattern(),
		Destination:   a.dispatcher.Destination().String(),
		Known:         a.store.Len(),
		Sinks:         a.fanout.Sinks(),
		Notifications: a.notif.Snapshot(),
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapAdapterConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, _, err := relayPipeline(cfg); err != nil {
			return err
		}
		if rc := mapReportConfig(cfg); rc.Enabled {
			if _, err := report.ParseSchedule(rc.Schedule, rc.Timezone); err != nil {
				return err
			}
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if _, err := resolveSources(a.sup.Context(), a.adapter, config.SourceChannels(cfg), a.log.With(logx.String("comp", "telegram"))); err != nil {
		return err
	}
	if err := a.report.Apply(mapReportConfig(cfg)); err != nil {
		return err
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// The notifier outlives the app context so Stop can drain it.
	if a.notif.Enabled() {
		a.notif.Start(context.WithoutCancel(a.sup.Context()))
	}
	a.ops.Start(a.sup.Context())

	a.sup.Go0("metrics", func(c context.Context) { a.metrics.Run(c, a.bus) })
	a.sup.Go0("updates.route", func(c context.Context) {
		route(c, a.updates, a.events, a.cmds.Handle)
	})
	a.loopDone = make(chan struct{})
	a.sup.Go("relay.loop", func(c context.Context) error {
		defer close(a.loopDone)
		return a.loop.Run(c, a.events)
	})

	// Keep this debug-level; every post produces at least one event.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer, ok := <-sub:
						if !ok {
							drained = true
						} else if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	channels := a.loop.Channels()
	a.log.Info("relay started",
		logx.String("bot", a.adapter.Username()),
		logx.Strings("channels", channels),
		logx.String("destination", a.dispatcher.Destination().String()),
		logx.String("pattern", a.loop.Pattern()),
		logx.Int("known_identifiers", a.store.Len()),
		logx.Strings("sinks", a.fanout.Sinks()),
	)
	a.ready.Store(true)
	sdNotify(a.log, daemon.SdNotifyReady, sdStatus("monitoring %d channel(s), forwarding to %s", len(channels), a.dispatcher.Destination()))
	return nil
}

// applyConfig applies a committed config to the running components.
func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed in sections that need a restart to take effect", logx.Strings("sections", restart))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.cmds.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if slices.Contains(sections, "relay") {
		if f, x, err := relayPipeline(newCfg); err != nil {
			a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
		} else {
			a.loop.Reconfigure(f, x)
			a.dispatcher.SetDestination(destination(newCfg))
		}
	}

	if slices.Contains(sections, "notify") {
		on, nn := oldCfg.Notify, newCfg.Notify
		if on.Journal != nn.Journal || !reflect.DeepEqual(on.Kafka, nn.Kafka) || on.SinkTimeout != nn.SinkTimeout {
			a.log.Warn("notify sink set changed; restart required for journal, kafka and sink_timeout changes")
		}
		prevEnabled := a.notif.Enabled()
		if ncfg, err := mapNotifierConfig(newCfg); err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
			switch {
			case prevEnabled && !ncfg.Enabled:
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			case !prevEnabled && ncfg.Enabled:
				a.log.Info("notifier enabled via config")
				a.notif.Start(context.WithoutCancel(c))
			}
			a.chat.SetTarget(notifyTarget(newCfg), nn.NotifyDuplicates)
		}
	}

	a.ops.Reconfigure(c, mapOpsConfig(newCfg))

	if err := a.report.Apply(mapReportConfig(newCfg)); err != nil {
		a.log.Warn("invalid report config; report stopped", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: sections})
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.ready.Store(false)
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping, sdStatus("stopping (%s)", reason))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Intake first, then the in-flight event, then everything it feeds.
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("relay", 5*time.Second, func(c context.Context) error {
		if a.loopDone == nil {
			return nil
		}
		select {
		case <-a.loopDone:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("report", 1*time.Second, func(context.Context) error { a.report.Stop(); return nil })
	step("ops", 2*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("kafka", 2*time.Second, func(context.Context) error {
		if a.kafka != nil {
			return a.kafka.Close()
		}
		return nil
	})
	step("dedup", 1*time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, router, metrics).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped", logx.String("reason", string(reason)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
