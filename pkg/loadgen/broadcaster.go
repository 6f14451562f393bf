package loadgen

import (
	"sync"

	"intelliscale/pkg/interfaces"
)

// EventType kind of a live stream event
type EventType string

const (
	EventMetric   EventType = "metric"
	EventComplete EventType = "complete"
)

// Event one frame of the live stream
type Event struct {
	Type   EventType                  `json:"type"`
	Metric *interfaces.LoadTestMetric `json:"metric,omitempty"`
	Test   *interfaces.LoadTest       `json:"test,omitempty"`
}

// Subscription live stream receiver. C is closed when the stream ends or on Close.
type Subscription struct {
	C <-chan Event

	ch  chan Event
	hub *Broadcaster
}

// Close detaches the subscription
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Broadcaster fans events out to subscribers. Publish never blocks: a full
// subscriber buffer loses its oldest event.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	last   *Event // terminal event replayed to late subscribers
}

// NewBroadcaster creates a broadcaster with per-subscriber buffer size
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 1
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. On a closed broadcaster the
// subscription yields the terminal event, if any, then closes.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		if b.last != nil {
			ch <- *b.last
		}
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		offer(sub.ch, ev)
	}
}

// Close publishes the terminal event and ends every subscription
func (b *Broadcaster) Close(final *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.last = final
	for sub := range b.subs {
		if final != nil {
			offer(sub.ch, *final)
		}
		close(sub.ch)
		delete(b.subs, sub)
	}
}

// Subscribers number of attached subscribers
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// offer sends without blocking, evicting the oldest buffered event when full.
// Only the publisher sends on ch, and it holds b.mu.
func offer(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
