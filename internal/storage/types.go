package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("journal closed")

const DefaultRedisKey = "relaybot:processed"

// Config configures the dedup journal.
//
// Driver values: "file" (default), "sqlite", "redis".
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	BusyTimeout time.Duration // sqlite only; 0 means default

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}
