package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
	Subscribe(channel string) chan ActivityEvent
	Unsubscribe(channel string, ch chan ActivityEvent)
	Publish(channel string, evt ActivityEvent)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub so that activity
// streams work across replicas.
type RedisBroker struct {
	rdb *redis.Client
	mu  sync.Mutex
	ps  map[chan ActivityEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), ps: map[chan ActivityEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(channel string) chan ActivityEvent {
	ch := make(chan ActivityEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(channel))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.ps[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt ActivityEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(channel string, ch chan ActivityEvent) {
	b.mu.Lock()
	ps := b.ps[ch]
	delete(b.ps, ch)
	b.mu.Unlock()
	// Closing the PubSub ends the fan-out goroutine, which closes ch.
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(channel string, evt ActivityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(channel), data).Err()
}

func (b *RedisBroker) chanName(channel string) string { return "gateway:" + channel }
