package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"relaybot/internal/report"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const startReply = "Bot is running and monitoring for contract addresses!"

// commandHandler answers the bot's own commands. When owners is non-empty,
// commands from anyone else are ignored silently.
type commandHandler struct {
	sender   kit.Sender
	snapshot func() report.Snapshot
	log      logx.Logger

	mu     sync.RWMutex
	owners []int64
}

func newCommandHandler(sender kit.Sender, snapshot func() report.Snapshot, owners []int64, log logx.Logger) *commandHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &commandHandler{sender: sender, snapshot: snapshot, log: log}
	h.SetOwners(owners)
	return h
}

func (h *commandHandler) SetOwners(ids []int64) {
	h.mu.Lock()
	h.owners = slices.Clone(ids)
	h.mu.Unlock()
}

func (h *commandHandler) allowed(from int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners) == 0 || slices.Contains(h.owners, from)
}

func (h *commandHandler) Handle(ctx context.Context, cmd *kit.Command) {
	if cmd == nil || cmd.Chat.IsZero() {
		return
	}
	if !h.allowed(cmd.FromID) {
		h.log.Debug("command from non-owner ignored", logx.String("cmd", cmd.Name), logx.Int64("from", cmd.FromID))
		return
	}

	var text string
	switch cmd.Name {
	case "start":
		text = startReply
	case "status":
		text = report.Text(h.snapshot())
	default:
		return
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := h.sender.SendText(sctx, cmd.Chat, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		h.log.Warn("command reply failed", logx.String("cmd", cmd.Name), logx.String("chat", cmd.Chat.String()), logx.Err(err))
		return
	}
	h.log.Debug("command handled", logx.String("cmd", cmd.Name), logx.Int64("from", cmd.FromID))
}

// route splits adapter updates into relay events and bot commands until ctx
// is done. A closed updates channel closes events, which the relay loop
// reports as a transport disconnect.
func route(ctx context.Context, updates <-chan kit.Update, events chan<- kit.InboundEvent, onCommand func(context.Context, *kit.Command)) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				close(events)
				return
			}
			switch up.Kind {
			case kit.UpdatePost:
				if up.Event == nil {
					continue
				}
				select {
				case events <- *up.Event:
				case <-ctx.Done():
					return
				}
			case kit.UpdateCommand:
				onCommand(ctx, up.Command)
			}
		}
	}
}
