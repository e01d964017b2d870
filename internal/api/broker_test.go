package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("op5_faults")

	evt := SSEEvent{Type: EventCreated, Data: model.Record{"id": "f1"}}
	b.Publish("op5_faults", evt)
	b.Publish("control_outages", SSEEvent{Type: EventCreated})

	select {
	case got := <-ch:
		assert.Equal(t, evt, got)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected event from another topic: %+v", got)
	default:
	}

	b.Unsubscribe("op5_faults", ch)
	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")

	// a second unsubscribe must not panic on the closed channel
	b.Unsubscribe("op5_faults", ch)
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t")
	defer b.Unsubscribe("t", ch)
	for range cap(ch) + 5 {
		b.Publish("t", SSEEvent{Type: EventUpdated})
	}
	assert.Len(t, ch, cap(ch))
}
