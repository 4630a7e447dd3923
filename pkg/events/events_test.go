package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventFileSaved, FileID: "h1"})

	for _, sub := range []Subscriber{s1, s2} {
		ev := receive(t, sub)
		assert.Equal(t, EventFileSaved, ev.Type)
		assert.Equal(t, "h1", ev.FileID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Stop()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(&Event{Type: EventStoreClosed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stopped broker")
	}
}

func TestNilBrokerPublish(t *testing.T) {
	var b *Broker
	require.NotPanics(t, func() { b.Publish(&Event{Type: EventStoreReady}) })
}

func TestSubscribeFiltersByType(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	store := b.Subscribe(StoreEvents...)
	files := b.Subscribe(EventFileRemoved)

	b.Publish(&Event{Type: EventFileSaved, FileID: "a"})
	b.Publish(&Event{Type: EventFileRemoved, FileID: "a"})
	b.Publish(&Event{Type: EventStoreClosed})

	assert.Equal(t, EventStoreClosed, receive(t, store).Type)
	assert.Equal(t, EventFileRemoved, receive(t, files).Type)

	select {
	case ev := <-store:
		t.Fatalf("unexpected %s", ev.Type)
	case ev := <-files:
		t.Fatalf("unexpected %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullSubscriberCountsDrops(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe(EventFileSaved)
	for i := 0; i < cap(sub)+5; i++ {
		b.Publish(&Event{Type: EventFileSaved})
	}
	assert.Eventually(t, func() bool { return b.Dropped() == 5 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sub, cap(sub))
}
