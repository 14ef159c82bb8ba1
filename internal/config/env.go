package config

import (
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// envOverlay lists the environment variables that override file values.
// Names follow the historical .env layout so existing deployments keep working.
type envOverlay struct {
	Token          string   `env:"TELEGRAM_TOKEN"`
	SourceChannels []string `env:"TARGET_CHANNELS" env-separator:","`
	Destination    string   `env:"AUTOBUY_BOT_USERNAME"`
	Pattern        string   `env:"CA_PATTERN"`
	NotifyChatID   string   `env:"NOTIFY_CHAT_ID"`
	LogLevel       string   `env:"LOG_LEVEL"`
	DedupPath      string   `env:"DEDUP_PATH"`
}

// ApplyEnv overlays non-empty environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverlay
	if err := cleanenv.ReadEnv(&env); err != nil {
		return err
	}
	if v := strings.TrimSpace(env.Token); v != "" {
		cfg.Telegram.Token = v
	}
	if chs := trimAll(env.SourceChannels); len(chs) > 0 {
		cfg.Relay.SourceChannels = chs
	}
	if v := strings.TrimSpace(env.Destination); v != "" {
		cfg.Relay.Destination = v
	}
	if v := strings.TrimSpace(env.Pattern); v != "" {
		cfg.Relay.Pattern = v
	}
	if v := strings.TrimSpace(env.NotifyChatID); v != "" {
		cfg.Notify.ChatID = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(env.DedupPath); v != "" {
		cfg.Dedup.Path = v
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
