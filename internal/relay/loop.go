package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"relaybot/internal/eventbus"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

type State int32

const (
	StateIdle State = iota
	StateAwaitingEvent
	StateFiltering
	StateExtracting
	StateProcessing
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingEvent:
		return "awaiting_event"
	case StateFiltering:
		return "filtering"
	case StateExtracting:
		return "extracting"
	case StateProcessing:
		return "processing"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Drop reasons published with eventbus.TypeEventDropped.
const (
	DropNotSource = "not_source"
	DropNoMatch   = "no_match"
)

type Deps struct {
	Filter     *ChannelFilter
	Extractor  *Extractor
	Store      *DedupStore
	Dispatcher *Dispatcher
	Fanout     *Fanout
	Status     *Tracker
	Bus        eventbus.Bus // optional
	Logger     logx.Logger
	Now        func() time.Time // optional, for tests
}

type pipeline struct {
	filter    *ChannelFilter
	extractor *Extractor
}

// Loop is the single consumer of inbound events. It is the only writer of
// the dedup store and the status tracker.
type Loop struct {
	store      *DedupStore
	dispatcher *Dispatcher
	fanout     *Fanout
	status     *Tracker
	bus        eventbus.Bus
	log        logx.Logger
	now        func() time.Time

	pipe  atomic.Pointer[pipeline]
	state atomic.Int32
}

func NewLoop(d Deps) (*Loop, error) {
	if d.Filter == nil || d.Extractor == nil || d.Store == nil || d.Dispatcher == nil || d.Status == nil {
		return nil, errors.New("relay: filter, extractor, store, dispatcher and status are required")
	}
	if d.Fanout == nil {
		d.Fanout = NewFanout(d.Logger, 0)
	}
	if d.Logger.IsZero() {
		d.Logger = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	l := &Loop{
		store:      d.Store,
		dispatcher: d.Dispatcher,
		fanout:     d.Fanout,
		status:     d.Status,
		bus:        d.Bus,
		log:        d.Logger,
		now:        d.Now,
	}
	l.pipe.Store(&pipeline{filter: d.Filter, extractor: d.Extractor})
	return l, nil
}

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

// Reconfigure swaps the filter and extractor. It takes effect from the next event.
func (l *Loop) Reconfigure(f *ChannelFilter, x *Extractor) {
	cur := l.pipe.Load()
	next := &pipeline{filter: cur.filter, extractor: cur.extractor}
	if f != nil {
		next.filter = f
	}
	if x != nil {
		next.extractor = x
	}
	l.pipe.Store(next)
}

func (l *Loop) Channels() []string { return l.pipe.Load().filter.Channels() }

func (l *Loop) Pattern() string { return l.pipe.Load().extractor.Pattern() }

// Run consumes events until ctx is canceled (returns nil) or the channel is
// closed (returns ErrTransportDisconnect). An event that was already accepted
// is processed to completion even if ctx is canceled meanwhile, so a relayed
// identifier is never left unrecorded.
func (l *Loop) Run(ctx context.Context, events <-chan kit.InboundEvent) error {
	defer l.setState(StateShuttingDown)
	work := context.WithoutCancel(ctx)
	for {
		l.setState(StateAwaitingEvent)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrTransportDisconnect
			}
			l.HandleEvent(work, ev)
		}
	}
}

// HandleEvent runs the full pipeline for one event and returns one Result per
// extracted identifier. Rejected events and events without matches yield nil.
func (l *Loop) HandleEvent(ctx context.Context, ev kit.InboundEvent) []Result {
	p := l.pipe.Load()

	l.setState(StateFiltering)
	if !p.filter.Allow(ev) {
		l.log.Debug("event ignored (not a source channel)", logx.String("origin", ev.Origin), logx.Int64("chat_id", ev.ChatID))
		l.publishDrop(DropNotSource)
		return nil
	}

	l.setState(StateExtracting)
	ids := p.extractor.Extract(ev.Text)
	channel := normalizeChannel(ev.Origin)
	if len(ids) == 0 {
		l.log.Debug("no identifiers in message", logx.String("channel", channel))
		l.publishDrop(DropNoMatch)
		return nil
	}

	eventID := uuid.NewString()
	log := l.log.With(logx.String("event_id", eventID), logx.String("channel", channel))
	log.Info("identifiers found",
		logx.Strings("ids", ids),
		logx.Int("message_id", ev.MessageID),
		logx.String("preview", preview(ev.Text, 100)),
	)

	l.setState(StateProcessing)
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		results = append(results, l.process(ctx, log, eventID, channel, id))
	}
	return results
}

func (l *Loop) process(ctx context.Context, log logx.Logger, eventID, channel, id string) Result {
	start := l.now()
	r := Result{EventID: eventID, Identifier: id, Channel: channel, At: start}

	if l.store.Contains(id) {
		r.Outcome = OutcomeSkippedDuplicate
		log.Info("skipping duplicate", logx.String("id", id))
	} else {
		r.Outcome, r.Err = l.dispatcher.Dispatch(ctx, id)
		if r.Err != nil {
			log.Error("relay failed", logx.String("id", id), logx.Err(r.Err))
		} else {
			if err := l.store.Record(ctx, id); err != nil {
				log.Warn("relayed identifier not persisted; it will be relayed again after restart", logx.String("id", id), logx.Err(err))
			}
			log.Info("relayed", logx.String("id", id), logx.String("to", l.dispatcher.Destination().String()))
		}
	}
	r.Took = l.now().Sub(start)

	l.status.Apply(r)
	l.fanout.Emit(ctx, r)
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeRelayOutcome, Time: r.At, Data: r})
	}
	return r
}

func (l *Loop) publishDrop(reason string) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: eventbus.TypeEventDropped, Data: reason})
}

func preview(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
