package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Topic identifies an event stream on the bus.
type Topic string

const (
	TopicSessionStarted Topic = "session:started"
	TopicSessionPaused  Topic = "session:paused"
	TopicSessionResumed Topic = "session:resumed"
	TopicSessionEnded   Topic = "session:ended"
	TopicSessionTick    Topic = "session:tick"

	TopicStationStatus Topic = "poste:statusUpdate"

	TopicNotificationAdded   Topic = "notification:added"
	TopicNotificationHidden  Topic = "notification:hidden"
	TopicNotificationDeleted Topic = "notification:deleted"
	TopicNotificationRead    Topic = "notification:read"
	TopicNotificationCleared Topic = "notification:cleared"
)

// Event is a typed bus message.
type Event struct {
	Topic   Topic
	Time    time.Time
	Payload any
}

// StationStatus is the payload of TopicStationStatus events.
type StationStatus struct {
	StationID int64
	Occupied  bool
	SessionID int64
}

const defaultBuffer = 64

// Bus is an in-process publish/subscribe channel with explicit subscriber
// lifecycle. Publish never blocks: when a subscriber's buffer is full the
// event is dropped for that subscriber (tick events are lossy by nature).
type Bus struct {
	subscribers map[*Subscription]struct{}
	logger      zerolog.Logger
	mu          sync.RWMutex
}

// Subscription is one subscriber's view of the bus. Events arrive on C in
// publish order. Close unsubscribes and closes C.
type Subscription struct {
	C      chan Event
	topics map[Topic]struct{}
	bus    *Bus
	once   sync.Once
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		logger:      logger.With().Str("component", "event-bus").Logger(),
	}
}

// Subscribe registers a subscriber for the given topics. With no topics the
// subscriber receives every event.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	sub := &Subscription{
		C:   make(chan Event, defaultBuffer),
		bus: b,
	}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]struct{}, len(topics))
		for _, topic := range topics {
			sub.topics[topic] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Close removes the subscription from the bus and closes its channel. Safe
// to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
		close(s.C)
	})
}

func (s *Subscription) wants(topic Topic) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Publish delivers an event to all interested subscribers without blocking.
func (b *Bus) Publish(topic Topic, payload any) {
	event := Event{Topic: topic, Time: time.Now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.C <- event:
		default:
			b.logger.Debug().Str("topic", string(topic)).Msg("Subscriber buffer full, event dropped")
		}
	}
}
