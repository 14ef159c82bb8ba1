package app

import (
	"context"
	"fmt"
	"strings"

	"relaybot/internal/config"
	logx "relaybot/pkg/logx"
)

type channelResolver interface {
	ResolveChannel(ctx context.Context, name string) (int64, error)
}

// resolveSources looks every source channel up once at startup. Channels that
// fail stay in the filter; the relay refuses to start only when none resolve.
func resolveSources(ctx context.Context, r channelResolver, channels []string, log logx.Logger) ([]string, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	resolved := make([]string, 0, len(channels))
	var failed []string
	for _, ch := range channels {
		id, err := r.ResolveChannel(ctx, ch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("source channel not resolved", logx.String("channel", ch), logx.Err(err))
			failed = append(failed, ch)
			continue
		}
		log.Info("source channel resolved", logx.String("channel", ch), logx.Int64("chat_id", id))
		resolved = append(resolved, ch)
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: none of the source channels could be resolved: %s", config.ErrConfigMissing, strings.Join(failed, ", "))
	}
	return resolved, nil
}
