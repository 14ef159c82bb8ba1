package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "relaybot/pkg/logx"
)

// redisJournal keeps the log in a Redis list so several relay processes
// (or a restarted one on another host) share one processed set.
type redisJournal struct {
	client *redis.Client
	key    string
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (*redisJournal, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, errors.New("dedup.redis_addr is required for redis driver")
	}
	key := strings.TrimSpace(cfg.RedisKey)
	if key == "" {
		key = DefaultRedisKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Debug("redis journal ready", logx.String("addr", cfg.RedisAddr), logx.String("key", key))
	return &redisJournal{client: client, key: key, log: log}, nil
}

func (r *redisJournal) Load(ctx context.Context) ([]string, error) {
	ids, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return ids, err
}

func (r *redisJournal) Append(ctx context.Context, id string) error {
	return r.client.RPush(ctx, r.key, id).Err()
}

func (r *redisJournal) Close() error { return r.client.Close() }
