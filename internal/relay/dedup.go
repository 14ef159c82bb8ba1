package relay

import (
	"context"
	"fmt"
	"sync"

	logx "relaybot/pkg/logx"
)

// Journal is the durable, append-only log of relayed identifiers.
//
// Load must treat a missing log as empty. Append is only called after a
// confirmed successful relay.
type Journal interface {
	Load(ctx context.Context) ([]string, error)
	Append(ctx context.Context, id string) error
	Close() error
}

// DedupStore is the in-memory processed set backed by a Journal.
// The in-memory set is the source of truth for the lifetime of the process.
// It never shrinks.
type DedupStore struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	journal Journal
	log     logx.Logger
}

// OpenDedupStore builds the in-memory set from the journal.
func OpenDedupStore(ctx context.Context, journal Journal, log logx.Logger) (*DedupStore, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	ids, err := journal.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load processed identifiers: %w", err)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	log.Info("processed identifiers loaded", logx.Int("count", len(seen)))
	return &DedupStore{seen: seen, journal: journal, log: log}, nil
}

func (s *DedupStore) Contains(id string) bool {
	s.mu.RLock()
	_, ok := s.seen[id]
	s.mu.RUnlock()
	return ok
}

// Record marks id as processed: in memory first, then in the journal.
// A journal failure returns an error wrapping ErrPersistence; the identifier
// stays processed in memory regardless.
func (s *DedupStore) Record(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.seen[id]; ok {
		s.mu.Unlock()
		return nil
	}
	s.seen[id] = struct{}{}
	// Appends stay under the lock so concurrent callers can never interleave
	// partial lines in the journal.
	err := s.journal.Append(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersistence, id, err)
	}
	return nil
}

func (s *DedupStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

func (s *DedupStore) Close() error { return s.journal.Close() }
