// Package feed fans committed room snapshots out to subscribers.
//
// Every message is a full snapshot. Slow subscribers lose intermediate
// snapshots, never the latest one, so a consumer that replaces its local
// state with each delivery always converges.
package feed

import (
	"sync"

	"github.com/cwrk-planet/roulette-service/internal/domain"
)

type Publisher interface {
	Publish(snap domain.Snapshot)
}

type Broker struct {
	mu     sync.RWMutex
	rooms  map[string]map[uint64]*Subscription
	nextID uint64
	buffer int
}

var _ Publisher = (*Broker)(nil)

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 8
	}
	return &Broker{
		rooms:  make(map[string]map[uint64]*Subscription),
		buffer: buffer,
	}
}

type Subscription struct {
	id     uint64
	roomID string
	broker *Broker

	mu     sync.Mutex
	ch     chan domain.Snapshot
	closed bool
}

// C delivers snapshots until the subscription is closed.
func (s *Subscription) C() <-chan domain.Snapshot { return s.ch }

func (s *Subscription) RoomID() string { return s.roomID }

// Close unsubscribes; calling it twice is fine.
func (s *Subscription) Close() {
	s.broker.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) deliver(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		// full: drop the oldest queued snapshot and retry
		select {
		case <-s.ch:
		default:
		}
	}
}

func (b *Broker) Subscribe(roomID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		roomID: roomID,
		broker: b,
		ch:     make(chan domain.Snapshot, b.buffer),
	}
	subs, ok := b.rooms[roomID]
	if !ok {
		subs = make(map[uint64]*Subscription)
		b.rooms[roomID] = subs
	}
	subs[sub.id] = sub
	return sub
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.rooms[s.roomID]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(b.rooms, s.roomID)
		}
	}
}

// Publish never blocks on a subscriber.
func (b *Broker) Publish(snap domain.Snapshot) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.rooms[snap.Room.ID]))
	for _, s := range b.rooms[snap.Room.ID] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.deliver(snap)
	}
}

func (b *Broker) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}
