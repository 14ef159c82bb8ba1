package config

import (
	"reflect"
	"strings"

	logx "relaybot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// attrs for logging. Secrets (tokens, passwords) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || o.GroupLog != n.GroupLog || o.PollTimeout != n.PollTimeout ||
		o.UpdatesBuffer != n.UpdatesBuffer || o.GroupPosts != n.GroupPosts || !reflect.DeepEqual(o.OwnerUserIDs, n.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.Int("telegram.owner_count", len(n.OwnerUserIDs)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Relay, newCfg.Relay) {
		changed = append(changed, "relay")
		attrs = append(attrs,
			logx.String("relay.pattern", Pattern(newCfg)),
			logx.Strings("relay.source_channels", SourceChannels(newCfg)),
			logx.String("relay.destination", strings.TrimSpace(newCfg.Relay.Destination)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dedup, newCfg.Dedup) {
		changed = append(changed, "dedup")
		attrs = append(attrs, logx.String("dedup.driver", DedupDriver(newCfg)))
	}

	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.chat_set", strings.TrimSpace(newCfg.Notify.ChatID) != ""),
			logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec),
			logx.Bool("notify.journal", newCfg.Notify.Journal),
			logx.Bool("notify.kafka", newCfg.Notify.Kafka.Enabled()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	oo, no := oldCfg.Ops, newCfg.Ops
	if oo.Enabled != no.Enabled || oo.Addr != no.Addr || oo.Pprof != no.Pprof ||
		oo.AllowInsecure != no.AllowInsecure || (oo.Token != "") != (no.Token != "") {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", no.Enabled),
			logx.String("ops.addr", OpsAddr(newCfg)),
			logx.Bool("ops.token_set", no.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Report, newCfg.Report) {
		changed = append(changed, "report")
		attrs = append(attrs,
			logx.Bool("report.enabled", newCfg.Report.Enabled),
			logx.String("report.schedule", newCfg.Report.Schedule),
		)
	}
	return changed, attrs
}

// RestartRequired lists changed sections that cannot be applied live.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "telegram", "dedup":
			out = append(out, s)
		}
	}
	return out
}
