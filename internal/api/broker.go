package api

import (
	"sync"
)

// activityChannel is the firehose channel carrying all gateway activity
// (inbound transitions, outbound dispatch summaries).
const activityChannel = "activity"

type ActivityEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan ActivityEvent]struct{} // channel name -> set of listeners
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan ActivityEvent]struct{}{}}
}

func (b *Broker) Subscribe(channel string) chan ActivityEvent {
	ch := make(chan ActivityEvent, 8)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = map[chan ActivityEvent]struct{}{}
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(channel string, ch chan ActivityEvent) {
	b.mu.Lock()
	if m := b.subs[channel]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, channel)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(channel string, evt ActivityEvent) {
	b.mu.Lock()
	m := b.subs[channel]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
