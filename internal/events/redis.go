package events

import (
	"context"
	"encoding/json"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker carries driver events over Redis Pub/Sub so every API replica can
// serve any driver's stream.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt)}, nil
}

// NewRedisBrokerClient wraps an existing client.
func NewRedisBrokerClient(rdb *redis.Client) *RedisBroker { return &RedisBroker{rdb: rdb} }

func (b *RedisBroker) Client() *redis.Client { return b.rdb }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) Subscribe(ctx context.Context, driverID string) (<-chan Event, func(), error) {
	ps := b.rdb.Subscribe(ctx, channelName(driverID))
	// wait for the subscription confirmation so no publish races past us
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	var once sync.Once
	cancel := func() { once.Do(func() { _ = ps.Close() }) }
	return ch, cancel, nil
}

func (b *RedisBroker) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelName(evt.DriverID), data).Err()
}

func channelName(driverID string) string { return "driver:" + driverID }
