package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/uuid"

	logx "relaybot/pkg/logx"
)

const (
	idA = "0x1111111111111111111111111111111111111111"
	idB = "0x2222222222222222222222222222222222222222"
)

func roundTrip(t *testing.T, cfg Config) {
	t.Helper()
	ctx := context.Background()

	j, err := Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ids, err := j.Load(ctx)
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("fresh journal has %v", ids)
	}
	for _, id := range []string{idA, idB} {
		if err := j.Append(ctx, id); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j, err = Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	ids, err = j.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(ids, []string{idA, idB}) {
		t.Fatalf("Load = %v", ids)
	}
}

func TestFileJournalRoundTrip(t *testing.T) {
	t.Parallel()
	roundTrip(t, Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state", "processed.txt")})
}

func TestFileJournalFormat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "processed.txt")
	if err := os.WriteFile(path, []byte("  "+idA+"  \n\n"+idB+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	j, err := Open(ctx, Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ids, err := j.Load(ctx)
	if err != nil || !slices.Equal(ids, []string{idA, idB}) {
		t.Fatalf("Load = %v, %v", ids, err)
	}
	if err := j.Append(ctx, "0xabc"); err != nil {
		t.Fatal(err)
	}
	_ = j.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "  " + idA + "  \n\n" + idB + "\n0xabc\n"
	if string(b) != want {
		t.Fatalf("file = %q, want %q", b, want)
	}
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	t.Parallel()
	roundTrip(t, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "relay.db")})
}

func TestSQLiteJournalIgnoresRepeats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, err := Open(ctx, Config{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "relay.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()
	for i := 0; i < 3; i++ {
		if err := j.Append(ctx, idA); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	ids, err := j.Load(ctx)
	if err != nil || !slices.Equal(ids, []string{idA}) {
		t.Fatalf("Load = %v, %v", ids, err)
	}
}

func TestJournalAppendAfterClose(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  func(dir string) Config
	}{
		{name: "file", cfg: func(dir string) Config { return Config{Driver: "file", Path: filepath.Join(dir, "processed.txt")} }},
		{name: "sqlite", cfg: func(dir string) Config { return Config{Driver: "sqlite", Path: filepath.Join(dir, "relay.db")} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			cfg := tt.cfg(t.TempDir())
			j, err := Open(ctx, cfg, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := j.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := j.Append(ctx, idA); !errors.Is(err, ErrClosed) {
				t.Fatalf("Append after Close = %v, want ErrClosed", err)
			}
			if _, err := j.Load(ctx); !errors.Is(err, ErrClosed) {
				t.Fatalf("Load after Close = %v, want ErrClosed", err)
			}
			if err := j.Close(); err != nil {
				t.Fatalf("second Close: %v", err)
			}
			if tt.name == "file" {
				if b, err := os.ReadFile(cfg.Path); err == nil && len(b) > 0 {
					t.Fatalf("journal written after Close: %q", b)
				}
			}
		})
	}
}

func TestRedisJournalRoundTrip(t *testing.T) {
	addr := os.Getenv("RELAYBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RELAYBOT_TEST_REDIS_ADDR not set")
	}
	roundTrip(t, Config{Driver: "redis", RedisAddr: addr, RedisKey: "relaybot:test:" + uuid.NewString()})
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
