/*
Package events provides an in-memory broker for store and file events.

Publishers never block on slow subscribers. Each subscriber has a buffered
channel and events that do not fit are dropped for that subscriber only;
Dropped reports how many. Subscribers may ask for a subset of event types.

# Architecture

	┌──────────────────── EVENT BROKER ──────────────────┐
	│                                                      │
	│  Publish(event) ─▶ event channel (buffer: 100)       │
	│                         │                            │
	│                         ▼                            │
	│                  broadcast loop                      │
	│                         │                            │
	│          ┌──────────────┼──────────────┐             │
	│          ▼              ▼              ▼             │
	│     subscriber     subscriber     subscriber         │
	│     (buffer 50)    (buffer 50)    (buffer 50)        │
	│                                                      │
	└──────────────────────────────────────────────────────┘

# Event Types

Store lifecycle, published by storage.Manager:

  - store.ready: the store opened and its schema is current
  - store.closed: the handle was released or the manager shut down
  - store.unavailable: initialization gave up; Message carries the cause

Files, published by files.Repository and association.Graph:

  - file.saved, file.removed (Metadata["cascaded"] counts containers rewritten)
  - file.associated, file.disassociated (Metadata["data_id"])

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe(events.StoreEvents...) // no arguments: every event
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.FileID)
	}

A nil *Broker is valid for publishing and drops every event, so components
take an optional broker without checking it.
*/
package events
