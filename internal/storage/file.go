package storage

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "relaybot/pkg/logx"
)

// fileJournal stores one identifier per line. Identifiers never contain
// newlines, so no escaping is applied.
type fileJournal struct {
	path string
	log  logx.Logger

	mu     sync.Mutex
	f      *os.File
	closed bool
}

func openFile(cfg Config, log logx.Logger) (*fileJournal, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("dedup.path is required for file driver")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &fileJournal{path: path, log: log}, nil
}

func (j *fileJournal) Load(ctx context.Context) ([]string, error) {
	_ = ctx
	j.mu.Lock()
	closed := j.closed
	j.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	f, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		j.log.Debug("journal file missing; starting empty", logx.String("path", j.path))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	return ids, s.Err()
}

func (j *fileJournal) Append(ctx context.Context, id string) error {
	_ = ctx
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if j.f == nil {
		f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		j.f = f
	}
	// a single write keeps the line whole under O_APPEND
	_, err := j.f.WriteString(id + "\n")
	return err
}

func (j *fileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}
