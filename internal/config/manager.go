package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "relaybot/pkg/logx"
)

type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list so publish never sends on a channel
	// that Unsubscribe is closing.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	// lastHash is the hash of the last committed config; editors often emit
	// several write events for one save.
	lastHash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs an extra validation hook run by Watch before commit.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads the config file (JSON or YAML) and overlays environment variables.
// A missing file is not an error: the config then comes from the environment only.
func (m *Manager) Parse() (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		jb, err := coerceToJSONBytes(m.path, b)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(jb))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", m.path, err)
		}
		// reject trailing tokens (e.g. concatenated JSON)
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			if err == nil {
				return nil, fmt.Errorf("parse %s: trailing data", m.path)
			}
			return nil, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return &cfg, nil
}

// Load parses, validates and commits the config. Used once at startup.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		// Latest config wins: if the subscriber is slow, drop one stale item.
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// reload parses, validates and publishes the file if its content changed.
// It returns true when a new config was committed.
func (m *Manager) reload(ctx context.Context) bool {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return false
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return false
	}
	if err := Validate(cfg); err != nil {
		m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
		return false
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			return false
		}
	}
	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	return true
}

// Watch reloads the config when its file changes, until ctx is done.
// The fsnotify watcher is recreated with jittered backoff if it breaks.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}
	sleep := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	// debounce partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			if ctx.Err() == nil {
				m.reload(ctx)
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			m.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}
		backoff = restartBackoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
					debounce()
					continue
				}
				m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
			}
		}
		_ = w.Close()

		wait := nextWait()
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait))
		if !sleep(wait) {
			return nil
		}
	}
	return nil
}
