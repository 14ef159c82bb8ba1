package app

import (
	"strings"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/notifier"
	"relaybot/internal/ops"
	"relaybot/internal/relay"
	"relaybot/internal/report"
	"relaybot/internal/sinks"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	logx "relaybot/pkg/logx"
)

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		GroupPosts:  cfg.Telegram.GroupPosts,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			Target:     kit.ParseChatTarget(cfg.Telegram.GroupLog),
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("dedup.busy_timeout", cfg.Dedup.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Dedup.Path)
	if path == "" {
		switch config.DedupDriver(cfg) {
		case "file":
			path = "./processed_contracts.txt"
		case "sqlite":
			path = "./relaybot.db"
		}
	}
	return storage.Config{
		Driver:        config.DedupDriver(cfg),
		Path:          path,
		BusyTimeout:   busy,
		RedisAddr:     strings.TrimSpace(cfg.Dedup.RedisAddr),
		RedisPassword: cfg.Dedup.RedisPassword,
		RedisDB:       cfg.Dedup.RedisDB,
		RedisKey:      strings.TrimSpace(cfg.Dedup.RedisKey),
	}, nil
}

// mapNotifierConfig enables the queue only when a notify chat is configured.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notify
	base, err := config.ParseDurationField("notify.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notify.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notify.sink_timeout", n.SinkTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax := n.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}
	return notifier.Config{
		Enabled:       !notifyTarget(cfg).IsZero(),
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      retryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
	}, nil
}

func notifyTarget(cfg *config.Config) kit.ChatTarget {
	return kit.ParseChatTarget(cfg.Notify.ChatID)
}

func destination(cfg *config.Config) kit.ChatTarget {
	return kit.ParseChatTarget(cfg.Relay.Destination)
}

func sinkTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("notify.sink_timeout", cfg.Notify.SinkTimeout, 5*time.Second)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

func mapKafkaConfig(cfg *config.Config) sinks.KafkaConfig {
	brokers := make([]string, 0, len(cfg.Notify.Kafka.Brokers))
	for _, b := range cfg.Notify.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return sinks.KafkaConfig{Brokers: brokers, Topic: strings.TrimSpace(cfg.Notify.Kafka.Topic)}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          config.OpsAddr(cfg),
		Token:         strings.TrimSpace(cfg.Ops.Token),
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   60 * time.Second,
	}
}

func mapReportConfig(cfg *config.Config) report.Config {
	schedule := strings.TrimSpace(cfg.Report.Schedule)
	if schedule == "" {
		schedule = report.DefaultSchedule
	}
	return report.Config{
		Enabled:  cfg.Report.Enabled,
		Schedule: schedule,
		Timezone: strings.TrimSpace(cfg.Report.Timezone),
		Target:   notifyTarget(cfg),
	}
}

// relayPipeline builds the filter and extractor for cfg.
func relayPipeline(cfg *config.Config) (*relay.ChannelFilter, *relay.Extractor, error) {
	f, err := relay.NewChannelFilter(config.SourceChannels(cfg))
	if err != nil {
		return nil, nil, err
	}
	x, err := relay.NewExtractor(config.Pattern(cfg))
	if err != nil {
		return nil, nil, err
	}
	return f, x, nil
}
