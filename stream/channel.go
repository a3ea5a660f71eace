package stream

import (
	"sync"

	"github.com/mutablelogic/mcp-streamhttp/eventstore"
)

// Subscription is one live consumer of a session's event stream. Delivery is
// best-effort: a slow consumer loses its oldest buffered events rather than
// blocking the publisher (spec.md §5 overflow policy, grounded on the
// teacher's Session.storeEvent "drop oldest" behavior).
type Subscription struct {
	events  chan eventstore.Event
	onClose func()
	once    sync.Once
}

func newSubscription(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Subscription{events: make(chan eventstore.Event, bufferSize)}
}

// Events returns the channel of events for this subscription. It is closed
// when Close is called.
func (s *Subscription) Events() <-chan eventstore.Event {
	return s.events
}

// deliver attempts a non-blocking send, evicting the oldest buffered event to
// make room when the channel is full.
func (s *Subscription) deliver(ev eventstore.Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events:
		default:
			return
		}
	}
}

// Close releases the subscription and unregisters it from its Manager.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		close(s.events)
	})
}
