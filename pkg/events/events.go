package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventStoreReady        EventType = "store.ready"
	EventStoreClosed       EventType = "store.closed"
	EventStoreUnavailable  EventType = "store.unavailable"
	EventFileSaved         EventType = "file.saved"
	EventFileRemoved       EventType = "file.removed"
	EventFileAssociated    EventType = "file.associated"
	EventFileDisassociated EventType = "file.disassociated"
)

// StoreEvents are the lifecycle events published by the store manager
var StoreEvents = []EventType{EventStoreReady, EventStoreClosed, EventStoreUnavailable}

// Event represents something that happened to the store or a file
type Event struct {
	Type      EventType
	FileID    string
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// subscription is the set of event types one subscriber asked for; empty means all
type subscription map[EventType]struct{}

func (s subscription) wants(t EventType) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[t]
	return ok
}

// Broker fans events out to subscribers. Events that do not fit a
// subscriber's buffer are dropped for that subscriber and counted.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]subscription
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Uint64
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]subscription),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe returns a channel receiving events of the given types, or every
// event when no type is given.
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	filter := make(subscription, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = filter
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for delivery. A nil broker drops the event.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filter := range b.subscribers {
		if !filter.wants(event.Type) {
			continue
		}
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber's buffer was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}
