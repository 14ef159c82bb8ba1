package relay

import (
	"errors"
	"slices"
	"testing"

	"relaybot/internal/config"
	kit "relaybot/internal/transport"
)

func TestChannelFilterAllow(t *testing.T) {
	t.Parallel()

	f, err := NewChannelFilter([]string{"alpha", "@beta", " gamma_calls "})
	if err != nil {
		t.Fatalf("NewChannelFilter: %v", err)
	}
	tests := []struct {
		name string
		ev   kit.InboundEvent
		want bool
	}{
		{name: "plain", ev: post("alpha", ""), want: true},
		{name: "with at", ev: post("@beta", ""), want: true},
		{name: "trimmed config", ev: post("gamma_calls", ""), want: true},
		{name: "other channel", ev: post("gamma", ""), want: false},
		{name: "case sensitive", ev: post("Alpha", ""), want: false},
		{name: "no origin", ev: kit.InboundEvent{Origin: "alpha"}, want: false},
		{name: "blank origin", ev: kit.InboundEvent{Origin: "@", HasOrigin: true}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Allow(tt.ev); got != tt.want {
				t.Fatalf("Allow(%+v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}
	if got := f.Channels(); !slices.Equal(got, []string{"alpha", "beta", "gamma_calls"}) {
		t.Fatalf("Channels = %v", got)
	}
}

func TestChannelFilterRequiresChannels(t *testing.T) {
	t.Parallel()

	_, err := NewChannelFilter([]string{"", " @ "})
	if !errors.Is(err, config.ErrConfigMissing) {
		t.Fatalf("err = %v, want ErrConfigMissing", err)
	}
}
