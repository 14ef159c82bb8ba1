package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	logx "relaybot/pkg/logx"
)

// ErrConfigMissing marks a required setting that is absent. It is fatal at startup.
var ErrConfigMissing = errors.New("configuration missing")

// Validate checks presence and shape of every setting the relay depends on.
// Missing required values wrap ErrConfigMissing; malformed values do not.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigMissing)
	}

	var missing []string
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, "telegram.token")
	}
	if len(SourceChannels(cfg)) == 0 {
		missing = append(missing, "relay.source_channels")
	}
	if strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cfg.Relay.Destination), "@")) == "" {
		missing = append(missing, "relay.destination")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}

	re, err := regexp.Compile(Pattern(cfg))
	if err != nil {
		return fmt.Errorf("relay.pattern: %w", err)
	}
	if re.MatchString("") {
		return fmt.Errorf("relay.pattern: %q matches the empty string", Pattern(cfg))
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"dedup.busy_timeout", cfg.Dedup.BusyTimeout},
		{"notify.retry_base", cfg.Notify.RetryBase},
		{"notify.retry_max_delay", cfg.Notify.RetryMaxDelay},
		{"notify.sink_timeout", cfg.Notify.SinkTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Telegram.UpdatesBuffer < 0 {
		return fmt.Errorf("telegram.updates_buffer must be >= 0")
	}
	if cfg.Notify.Workers < 0 || cfg.Notify.QueueSize < 0 || cfg.Notify.RatePerSec < 0 || cfg.Notify.RetryMax < 0 {
		return fmt.Errorf("notify: workers, queue_size, rate_per_sec and retry_max must be >= 0")
	}

	switch DedupDriver(cfg) {
	case "file", "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.Dedup.RedisAddr) == "" {
			return fmt.Errorf("%w: dedup.redis_addr", ErrConfigMissing)
		}
	default:
		return fmt.Errorf("dedup.driver: unknown driver %q", cfg.Dedup.Driver)
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: invalid %q", cfg.Logging.Level)
	}
	if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
		return fmt.Errorf("logging.telegram.min_level: invalid %q", cfg.Logging.Telegram.MinLevel)
	}

	if cfg.Ops.Enabled {
		host, _, err := net.SplitHostPort(OpsAddr(cfg))
		if err != nil {
			return fmt.Errorf("ops.addr: %w", err)
		}
		if !isLoopback(host) && strings.TrimSpace(cfg.Ops.Token) == "" && !cfg.Ops.AllowInsecure {
			return fmt.Errorf("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", OpsAddr(cfg))
		}
	}
	if tz := strings.TrimSpace(cfg.Report.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("report.timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}

// Pattern returns the effective identifier pattern.
func Pattern(cfg *Config) string {
	if p := strings.TrimSpace(cfg.Relay.Pattern); p != "" {
		return p
	}
	return DefaultPattern
}

// SourceChannels returns the configured handles with '@' and blanks removed.
func SourceChannels(cfg *Config) []string {
	out := make([]string, 0, len(cfg.Relay.SourceChannels))
	for _, c := range cfg.Relay.SourceChannels {
		c = strings.TrimPrefix(strings.TrimSpace(c), "@")
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func DedupDriver(cfg *Config) string {
	d := strings.ToLower(strings.TrimSpace(cfg.Dedup.Driver))
	if d == "" {
		return "file"
	}
	if d == "sqlite3" {
		return "sqlite"
	}
	return d
}

func OpsAddr(cfg *Config) string {
	if a := strings.TrimSpace(cfg.Ops.Addr); a != "" {
		return a
	}
	return "127.0.0.1:9464"
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
