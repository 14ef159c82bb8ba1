package config

// DefaultPattern matches an EVM-style contract address.
const DefaultPattern = `0x[a-fA-F0-9]{40}`

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Relay    RelayConfig    `json:"relay"`
	Dedup    DedupConfig    `json:"dedup"`
	Notify   NotifyConfig   `json:"notify"`
	Logging  LoggingConfig  `json:"logging"`
	Ops      OpsConfig      `json:"ops,omitempty"`
	Report   ReportConfig   `json:"report,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// GroupLog receives warn+ log lines when logging.telegram is enabled.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// UpdatesBuffer bounds the adapter->relay queue.
	UpdatesBuffer int `json:"updates_buffer,omitempty"`
	// GroupPosts also relays messages from public groups listed as sources,
	// not only channel posts.
	GroupPosts bool `json:"group_posts,omitempty"`
}

// RelayConfig is the core of the deployment: where identifiers come from,
// what they look like and where they go.
type RelayConfig struct {
	// Pattern is a Go regexp; empty means DefaultPattern.
	Pattern string `json:"pattern,omitempty"`
	// SourceChannels are channel handles, leading '@' optional.
	SourceChannels []string `json:"source_channels"`
	// Destination is "@username" or a numeric chat id.
	Destination string `json:"destination"`
}

// DedupConfig selects the durable processed-identifier log.
//
// Example:
//
//	"dedup": { "driver": "file", "path": "./processed_contracts.txt" }
type DedupConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default) | sqlite | redis
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only

	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisKey      string `json:"redis_key,omitempty"`
}

// NotifyConfig controls the notification sinks and the async chat pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type NotifyConfig struct {
	// ChatID is the optional secondary chat that receives outcome notifications.
	ChatID string `json:"chat_id,omitempty"`

	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	// SinkTimeout bounds a single sink delivery during fan-out.
	SinkTimeout string `json:"sink_timeout,omitempty"`

	// NotifyDuplicates also notifies the chat sink on SkippedDuplicate outcomes.
	NotifyDuplicates bool `json:"notify_duplicates,omitempty"`

	Journal bool        `json:"journal,omitempty"`
	Kafka   KafkaConfig `json:"kafka,omitempty"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 && k.Topic != "" }

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// OpsConfig controls the optional operations HTTP server
// (/healthz, /status, /metrics, /debug/pprof).
//
// Prefer binding to localhost. A non-loopback address requires a token
// or an explicit allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// ReportConfig schedules a periodic status summary to notify.chat_id.
type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron, default "0 */6 * * *"
	Timezone string `json:"timezone,omitempty"`
}
