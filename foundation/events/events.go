// Package events supports streaming the client's sync and lifecycle
// activity to any number of subscribers, typically websocket connections.
package events

import (
	"fmt"
	"sync"
)

// Events maintains a mapping of unique id and channels so goroutines can
// subscribe and receive the activity stream.
type Events struct {
	subscribers map[string]chan string
	mu          sync.RWMutex
}

// New constructs an events value for subscribing to the activity stream.
func New() *Events {
	return &Events{
		subscribers: make(map[string]chan string),
	}
}

// Shutdown closes and removes every channel handed out by Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.subscribers {
		delete(evt.subscribers, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that receives the
// activity stream from that point on.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.subscribers[id]; exists {
		return ch
	}

	// A subscriber that can't keep up drops messages rather than stalling
	// a sync round. The buffer absorbs ordinary websocket send latency.
	const messageBuffer = 100

	evt.subscribers[id] = make(chan string, messageBuffer)
	return evt.subscribers[id]
}

// Release closes and removes the channel that was provided by the call to
// Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.subscribers[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.subscribers, id)
	close(ch)
	return nil
}

// Send delivers a message to every subscriber. Send never blocks waiting
// for a receiver.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}
