package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "relaybot/internal/runtime/supervisor"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

// Commands served by the bot itself.
var Commands = []tele.Command{
	{Text: "start", Description: "Check that the relay is running"},
	{Text: "status", Description: "Show relay counters and settings"},
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter internal goroutines (poll loop, drop logger, stop watcher).
	// It is created on Start() and cancelled on Stop().
	sup *rtsup.Supervisor

	// sendMu is held for reading while a handler writes to out; fail takes it
	// for writing before closing the channel.
	sendMu sync.RWMutex

	// droppedCommands counts commands dropped because the consumer was busy.
	// Posts are never dropped; they block the poll loop instead.
	droppedCommands uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	return newAdapter(cfg, log, false)
}

// newAdapter with offline set skips getMe, so no network is touched.
func newAdapter(cfg Config, log logx.Logger, offline bool) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &Adapter{cfg: cfg, log: log}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout, AllowedUpdates: []string{"message", "channel_post"}},
		// One update at a time keeps posts in arrival order.
		Synchronous: true,
		OnError:     a.handleError,
		Offline:     offline,
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Username is the bot's own username as reported by getMe.
func (a *Adapter) Username() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	post := func(c tele.Context) error {
		if ev := eventFromMessage(c.Message()); ev != nil {
			a.sendPost(kit.Update{Kind: kit.UpdatePost, Event: ev})
		}
		return nil
	}
	a.bot.Handle(tele.OnChannelPost, post)
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if !a.cfg.GroupPosts {
			return nil
		}
		return post(c)
	})
	a.bot.Handle(tele.OnMedia, func(c tele.Context) error {
		if !a.cfg.GroupPosts {
			return nil
		}
		return post(c)
	})

	for _, cmd := range Commands {
		a.bot.Handle("/"+cmd.Text, func(c tele.Context) error {
			if cm := commandFromMessage(c.Message()); cm != nil {
				a.sendCommand(kit.Update{Kind: kit.UpdateCommand, Command: cm})
			}
			return nil
		})
	}
}

func (a *Adapter) current() chan<- kit.Update {
	out, _ := a.out.Load().(chan<- kit.Update)
	return out
}

// sendPost blocks until the consumer takes the update or the adapter stops.
func (a *Adapter) sendPost(up kit.Update) {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	out := a.current()
	if out == nil {
		return
	}
	a.runMu.Lock()
	sup := a.sup
	a.runMu.Unlock()
	if sup == nil {
		return
	}
	select {
	case out <- up:
	case <-sup.Context().Done():
	}
}

func (a *Adapter) sendCommand(up kit.Update) {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	out := a.current()
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedCommands, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	if err := a.bot.SetCommands(Commands); err != nil {
		a.log.Warn("set bot commands failed", logx.Err(err))
	}

	// Periodic summary for dropped commands (avoid noisy per-update logs).
	sup.Go0("telegram.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedCommands, 0); n > 0 {
				a.log.Warn("bot commands dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	// Ensure we stop telebot when the adapter context is cancelled.
	sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() is a long-running loop. In some failure modes it can
	// exit unexpectedly; run it under a restart loop so the adapter self-heals.
	sup.GoRestart("telegram.poll", func(c context.Context) error {
		a.log.Info("polling started", logx.String("bot", a.Username()))
		a.bot.Start()
		a.log.Info("polling stopped")
		return c.Err()
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		// Restart if Start() returns while context is still active.
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// handleError is telebot's OnError. Poll errors arrive here too; an invalid
// token or a second poller on the same token cannot recover by retrying, so
// those end the update stream.
func (a *Adapter) handleError(err error, _ tele.Context) {
	if err == nil {
		return
	}
	if !unrecoverable(err) {
		a.log.Warn("telegram handler error", logx.Err(err))
		return
	}
	a.log.Error("telegram polling cannot continue", logx.Err(err))
	// OnError runs on the poller goroutine, which bot.Stop waits for.
	go a.fail()
}

// fail stops polling and closes the output channel. Consumers see the
// closed channel as a transport disconnect.
func (a *Adapter) fail() {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return
	}
	sup := a.sup
	a.sup = nil
	a.running = false
	out := a.current()
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if sup != nil {
		sup.Cancel()
	}
	if out != nil {
		a.sendMu.Lock()
		close(out)
		a.sendMu.Unlock()
	}
	if sup != nil {
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sup.Wait(wctx); err != nil {
			a.log.Debug("telegram poller wait", logx.Err(err))
		}
	}
}

func unrecoverable(err error) bool {
	if errors.Is(err, tele.ErrUnauthorized) {
		return true
	}
	var te *tele.Error
	if errors.As(err, &te) {
		return te.Code == http.StatusUnauthorized || te.Code == http.StatusConflict
	}
	// telebot reports codes it has no sentinel for as "telegram: <description> (<code>)"
	msg := err.Error()
	return strings.HasSuffix(msg, "(401)") || strings.HasSuffix(msg, "(409)")
}

// ResolveChannel looks a public channel up by username.
func (a *Adapter) ResolveChannel(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return 0, errors.New("telegram: empty channel name")
	}
	chat, err := a.bot.ChatByUsername("@" + name)
	if err != nil {
		return 0, err
	}
	return chat.ID, nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on Telegram long-poll.
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// Grace window: keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// recipient addresses a chat by "@username", which tele.Chat cannot do.
type recipient string

func (r recipient) Recipient() string { return string(r) }

func recipientFor(to kit.ChatTarget) tele.Recipient {
	if u := strings.TrimPrefix(strings.TrimSpace(to.Username), "@"); u != "" {
		return recipient("@" + u)
	}
	return &tele.Chat{ID: to.ChatID}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if to.IsZero() {
		return kit.MessageRef{}, errors.New("telegram: empty destination")
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	rcpt := recipientFor(to)

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(rcpt, chunk, &tele.SendOptions{
			ParseMode:             tele.ParseMode(opt.ParseMode),
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{MessageID: msg.ID}
			if msg.Chat != nil {
				first.ChatID = msg.Chat.ID
			}
		}
	}
	return first, nil
}

// eventFromMessage maps a channel post or group message to an InboundEvent.
// Media captions count as text.
func eventFromMessage(m *tele.Message) *kit.InboundEvent {
	if m == nil || m.Chat == nil {
		return nil
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	origin := strings.TrimSpace(m.Chat.Username)
	at := m.Time()
	if m.Unixtime == 0 {
		at = time.Now()
	}
	return &kit.InboundEvent{
		Origin:    origin,
		HasOrigin: origin != "",
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
		Text:      text,
		At:        at,
	}
}

func commandFromMessage(m *tele.Message) *kit.Command {
	if m == nil || m.Chat == nil {
		return nil
	}
	fields := strings.Fields(m.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	// "/status@relay_bot" in groups
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	cmd := &kit.Command{
		Name: strings.ToLower(name),
		Args: fields[1:],
		Chat: kit.ChatTarget{ChatID: m.Chat.ID, ThreadID: m.ThreadID},
	}
	if m.Sender != nil {
		cmd.FromID = m.Sender.ID
	}
	return cmd
}
