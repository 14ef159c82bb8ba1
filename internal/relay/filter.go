package relay

import (
	"fmt"
	"sort"
	"strings"

	"relaybot/internal/config"
	kit "relaybot/internal/transport"
)

// ChannelFilter admits events whose origin is a configured source channel.
type ChannelFilter struct {
	set map[string]struct{}
}

// NewChannelFilter normalizes names by trimming spaces and one leading '@'.
// An empty resulting set is a configuration error.
func NewChannelFilter(channels []string) (*ChannelFilter, error) {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		c = normalizeChannel(c)
		if c != "" {
			set[c] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no source channels", config.ErrConfigMissing)
	}
	return &ChannelFilter{set: set}, nil
}

// Allow matches case-sensitively. Events without a resolvable origin are rejected.
func (f *ChannelFilter) Allow(ev kit.InboundEvent) bool {
	if !ev.HasOrigin {
		return false
	}
	name := normalizeChannel(ev.Origin)
	if name == "" {
		return false
	}
	_, ok := f.set[name]
	return ok
}

func (f *ChannelFilter) Channels() []string {
	out := make([]string, 0, len(f.set))
	for c := range f.set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func normalizeChannel(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}
