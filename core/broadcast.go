package core

import "sync"

// StreamMessage is one push notification surfaced to live subscribers: a new
// observed event ("url") or an appended security log entry ("log").
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Broadcaster fans engine notifications out to subscribers. Slow subscribers
// drop messages rather than stall the ingest path.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan StreamMessage
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan StreamMessage)}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel.
func (b *Broadcaster) Subscribe() (<-chan StreamMessage, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan StreamMessage, 64)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers a message to every subscriber without blocking.
func (b *Broadcaster) Publish(msg StreamMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// Subscriber is not keeping up; drop rather than block ingest.
		}
	}
}
