package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster(4)
	ch, unsub := b.Subscribe("sess-1")
	defer unsub()

	b.Publish("sess-1", Event{SessionID: "sess-1", Sequence: 1})

	select {
	case evt := <-ch:
		assert.Equal(t, int64(1), evt.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcasterDropsOnFullBuffer(t *testing.T) {
	b := NewBroadcaster(1)
	ch, unsub := b.Subscribe("sess-1")
	defer unsub()

	// Fill the buffer, then publish a second event which must be dropped
	// rather than block.
	b.Publish("sess-1", Event{Sequence: 1})
	done := make(chan struct{})
	go func() {
		b.Publish("sess-1", Event{Sequence: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	evt := <-ch
	assert.Equal(t, int64(1), evt.Sequence)
}

func TestBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster(4)
	ch, unsub := b.Subscribe("sess-1")
	unsub()

	b.Publish("sess-1", Event{Sequence: 1})

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}
