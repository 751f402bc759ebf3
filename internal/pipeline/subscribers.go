package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/coffersTech/behavelog/internal/model"
)

// Subscription receives every routed record on C until it is cancelled
// or the router closes. Delivery never blocks the router: when C is full
// the record is skipped for this subscriber.
type Subscription struct {
	ID string
	C  <-chan model.Record

	ch chan model.Record
}

type subscribers struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[string]*Subscription)}
}

func (s *subscribers) add(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan model.Record, buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	return sub
}

func (s *subscribers) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return false
	}
	delete(s.subs, id)
	close(sub.ch)
	return true
}

// publish runs under the read lock, so remove cannot close a channel
// while it is being sent on.
func (s *subscribers) publish(rec model.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		select {
		case sub.ch <- rec:
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
}

func (s *subscribers) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Subscribe registers an observer with the given channel buffer.
func (r *Router) Subscribe(buffer int) *Subscription {
	sub := r.subs.add(buffer)
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		r.subs.remove(sub.ID)
	}
	return sub
}

// Unsubscribe closes the subscription's channel. It reports false for an
// unknown or already removed id.
func (r *Router) Unsubscribe(id string) bool {
	return r.subs.remove(id)
}
