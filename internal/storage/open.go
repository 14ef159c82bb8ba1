package storage

import (
	"context"
	"errors"
	"strings"

	"relaybot/internal/relay"
	logx "relaybot/pkg/logx"
)

// Open initializes the configured journal.
func Open(ctx context.Context, cfg Config, log logx.Logger) (relay.Journal, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	var (
		j   relay.Journal
		err error
	)
	switch driver {
	case "", "file":
		j, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		j, err = openSQLite(ctx, cfg, log)
	case "redis":
		j, err = openRedis(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}
