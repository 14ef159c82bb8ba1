package relay

import (
	"context"
	"fmt"
	"sync"

	kit "relaybot/internal/transport"
)

// Dispatcher sends new identifiers to the single downstream consumer.
// There is no retry loop: a failed identifier is retried when it is seen again.
type Dispatcher struct {
	sender kit.Sender

	mu   sync.RWMutex
	dest kit.ChatTarget
}

func NewDispatcher(sender kit.Sender, dest kit.ChatTarget) *Dispatcher {
	return &Dispatcher{sender: sender, dest: dest}
}

func (d *Dispatcher) Destination() kit.ChatTarget {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dest
}

func (d *Dispatcher) SetDestination(dest kit.ChatTarget) {
	d.mu.Lock()
	d.dest = dest
	d.mu.Unlock()
}

// Dispatch performs one send. Errors wrap ErrDelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) (Outcome, error) {
	dest := d.Destination()
	if _, err := d.sender.SendText(ctx, dest, id, &kit.SendOptions{DisablePreview: true}); err != nil {
		return OutcomeFailure, fmt.Errorf("%w: send to %s: %w", ErrDelivery, dest, err)
	}
	return OutcomeSuccess, nil
}
