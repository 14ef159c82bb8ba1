package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "relaybot/internal/transport"
)

// ---- Config ----

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type TelegramConfig struct {
	Enabled    bool
	Target     kit.ChatTarget
	MinLevel   string
	RatePerSec int
}

// ---- Logger API ----

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field mutates a zerolog event. Fields are applied in-order; later keys win.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Strings(k string, v []string) Field {
	return func(e *zerolog.Event) { e.Strs(k, v) }
}
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Uint64(k string, v uint64) Field {
	return func(e *zerolog.Event) { e.Uint64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a lightweight structured logger.
//
// A Logger created from Service stays live across Service.Apply() calls.
// The zero value is a safe no-op logger.
type Logger struct {
	svc     *Service
	base    zerolog.Logger
	hasBase bool

	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// NewConsole creates a standalone console logger, used before the Service exists.
func NewConsole(level string) Logger {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	zl := zerolog.New(newConsoleWriter(Stdout())).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

// NewWriter builds a JSON logger on top of w. Tests use it to capture output.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.DebugLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func (l Logger) IsZero() bool { return l.svc == nil && !l.hasBase && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	if l.svc != nil {
		return l.svc.current()
	}
	if l.hasBase {
		return l.base
	}
	return zerolog.Nop()
}

func (l Logger) Enabled(level Level) bool {
	return level >= l.root().GetLevel()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields...) }

func (l Logger) log(level zerolog.Level, msg string, fields ...Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if caller := shortCaller(3); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// ---- Service (dynamic config + sinks) ----

type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sender   kit.Sender
	tgQueue  chan telegramItem
	tgOnce   sync.Once
	tgCancel context.CancelFunc
	tgWG     sync.WaitGroup

	// guarded by mu
	target   kit.ChatTarget
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type telegramItem struct {
	to  kit.ChatTarget
	msg string
}

// New creates the logging service, applies cfg immediately and returns the root Logger.
// sender may be nil when Telegram logging is never enabled.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{
		sender:  sender,
		tgQueue: make(chan telegramItem, 256),
	}
	s.root.Store(zerolog.New(newConsoleWriter(Stdout())).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.tgCancel
	s.tgCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.tgWG.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps outputs and levels at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.target = cfg.Telegram.Target
	s.minLevel = parseLevel(cfg.Telegram.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Telegram.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./relaybot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled && s.sender != nil {
		s.tgOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.tgCancel = cancel
			s.tgWG.Add(1)
			go func() {
				defer s.tgWG.Done()
				s.telegramWorker(ctx)
			}()
		})
		writers = append(writers, &telegramWriter{svc: s})
		if s.target.IsZero() {
			fmt.Fprintln(Stderr(), "logx: telegram logging enabled but telegram.group_log is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(zl)
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

func (s *Service) telegramWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.tgQueue:
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, _ = s.sender.SendText(sctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

// ---- Telegram writer (zerolog sink) ----

type telegramWriter struct{ svc *Service }

func (w *telegramWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *telegramWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	to := s.target
	lim := s.limiter
	minLvl := s.minLevel
	s.mu.Unlock()

	if to.IsZero() || lim == nil || level < minLvl || !lim.Allow() {
		return len(p), nil
	}
	msg := formatTelegramJSON(p)
	if msg == "" {
		return len(p), nil
	}
	// Never block core logging.
	select {
	case s.tgQueue <- telegramItem{to: to, msg: msg}:
	default:
	}
	return len(p), nil
}

func formatTelegramJSON(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// ValidLevel reports whether s names a level parseLevel understands (empty is valid).
func ValidLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}

// Stdout returns the configured stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the configured stderr sink.
func Stderr() io.Writer { return os.Stderr }
