package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(activityChannel)

	evt := ActivityEvent{Type: "inbound.processed", Data: map[string]any{"receiptId": "r1"}}
	b.Publish(activityChannel, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["receiptId"].(string) != "r1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(activityChannel, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerDropsWhenListenerSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(activityChannel)
	defer b.Unsubscribe(activityChannel, ch)

	// Fill past the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(activityChannel, ActivityEvent{Type: "dispatch.completed"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow listener")
	}
}
