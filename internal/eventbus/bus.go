package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the sensor host.
const (
	TypeEntryCreated      = "entry.created"
	TypeEntryUpdated      = "entry.updated"
	TypeEntryRemoved      = "entry.removed"
	TypeSensorStateChange = "sensor.state_changed"
	TypeConfigReloaded    = "config.reloaded"
)

// Event is an in-memory signal between components.
//
// Publish never blocks. A subscriber whose buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// StateChange is the payload of TypeSensorStateChange.
type StateChange struct {
	EntryID string
	Name    string
	Date    time.Time
	IsOn    bool
}

// EntryChange is the payload of the entry.* events.
type EntryChange struct {
	EntryID string
	Name    string
	ActorID int64
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch    chan Event
	types map[string]struct{}
}

func (s *sub) wants(t string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*sub
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Type) {
			targets = append(targets, s.ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		// The subscriber may close its channel between the snapshot and
		// the send.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

// Subscribe registers a buffered subscriber. With no types given it
// receives every event.
func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}
