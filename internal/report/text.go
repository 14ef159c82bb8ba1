package report

import (
	"fmt"
	"strings"
	"time"

	"relaybot/internal/relay"
)

// Snapshot is everything the status text shows.
type Snapshot struct {
	Status       relay.Status
	Channels     []string
	Destination  string
	ProcessedSet int
	Now          time.Time
}

// Text renders the status block used by /status and the periodic report.
func Text(s Snapshot) string {
	st := s.Status
	orDash := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}
	channels := make([]string, len(s.Channels))
	for i, c := range s.Channels {
		channels[i] = "@" + c
	}

	var b strings.Builder
	b.WriteString("🤖 Relay status\n")
	fmt.Fprintf(&b, "⏱️ Uptime: %s\n", st.Uptime(s.Now))
	fmt.Fprintf(&b, "📊 Processed: %d (failed %d, skipped %d)\n", st.Processed, st.Failed, st.Skipped)
	fmt.Fprintf(&b, "📝 Last identifier: %s\n", orDash(st.LastIdentifier))
	fmt.Fprintf(&b, "📢 Last channel: %s\n", orDash(prefixAt(st.LastChannel)))
	fmt.Fprintf(&b, "🔔 Last status: %s\n", orDash(st.LastOutcome))
	fmt.Fprintf(&b, "🗂️ Known identifiers: %d\n", s.ProcessedSet)
	fmt.Fprintf(&b, "📡 Monitoring: %s\n", orDash(strings.Join(channels, ", ")))
	fmt.Fprintf(&b, "🎯 Forwarding to: %s", orDash(s.Destination))
	return b.String()
}

func prefixAt(s string) string {
	if s == "" {
		return ""
	}
	return "@" + s
}
