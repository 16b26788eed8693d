package events

import (
	"context"
	"sync"
)

// Broker is the in-process fan-out behind the SSE and WebSocket driver streams.
// Slow subscribers drop events rather than block publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // driverId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(ctx context.Context, driverID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[driverID] == nil {
		b.subs[driverID] = map[chan Event]struct{}{}
	}
	b.subs[driverID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() { once.Do(func() { b.unsubscribe(driverID, ch) }) }
	return ch, cancel, nil
}

func (b *Broker) unsubscribe(driverID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.subs[driverID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, driverID)
		}
	}
	close(ch)
}

func (b *Broker) Publish(ctx context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[evt.DriverID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribers reports the open subscriptions for driverID.
func (b *Broker) Subscribers(driverID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[driverID])
}
