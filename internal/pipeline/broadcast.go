package pipeline

import (
	"sync"

	"github.com/BICAS-web3/Backend/internal/model"
)

// Broadcaster fans enriched bets out to any number of subscribers, each with
// its own buffered cursor. Delivery preserves publish order per subscriber
// but favours freshness: when a subscriber's buffer is full the oldest unread
// event is dropped rather than blocking the producer. The persisted record
// stays the source of truth for anything a lagging client misses.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// Subscription is one subscriber's receive cursor.
type Subscription struct {
	b  *Broadcaster
	ch chan model.BetDetail
}

// NewBroadcaster creates a broadcaster whose subscribers each buffer up to
// buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 256
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new independent cursor starting at the next published
// event.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{b: b, ch: make(chan model.BetDetail, b.buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers the bet to every live subscriber without ever blocking.
func (b *Broadcaster) Publish(bet model.BetDetail) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- bet:
		default:
			// Buffer full: evict the oldest unread event to make room. If the
			// subscriber raced us and refilled the buffer, the new event is
			// dropped instead; either way the producer does not wait.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- bet:
			default:
			}
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// C returns the subscriber's receive channel. It is closed by Cancel.
func (s *Subscription) C() <-chan model.BetDetail {
	return s.ch
}

// Cancel removes the subscription and closes its channel. Safe to call once;
// the dispatcher owning the subscription is its only caller.
func (s *Subscription) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}
