package notify

import (
	"context"
	"sync"
	"time"

	"github.com/netcafe-labs/postetrack/internal/events"
	"github.com/netcafe-labs/postetrack/internal/metrics"
	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxHistory caps the persisted notification history.
	DefaultMaxHistory = 100

	// DefaultRetention is the age past which persisted records are dropped
	// on load.
	DefaultRetention = 30 * 24 * time.Hour
)

// StoreConfig holds notification store configuration.
type StoreConfig struct {
	MaxHistory int
	Retention  time.Duration
}

// Store holds the notification history, visible and hidden. Every mutation
// re-persists the non-temporary subset, capped to the most recent
// MaxHistory records. Mutations are serialized per store instance.
type Store struct {
	items     []Notification // chronological, oldest first
	persist   storage.NotificationStore
	bus       *events.Bus
	maxItems  int
	retention time.Duration
	logger    zerolog.Logger
	mu        sync.Mutex
}

// NewStore creates a notification store backed by persist. A nil persist
// keeps the history purely in memory.
func NewStore(persist storage.NotificationStore, bus *events.Bus, cfg StoreConfig, logger zerolog.Logger) *Store {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	return &Store{
		items:     make([]Notification, 0),
		persist:   persist,
		bus:       bus,
		maxItems:  cfg.MaxHistory,
		retention: cfg.Retention,
		logger:    logger.With().Str("component", "notification-store").Logger(),
	}
}

// Load replaces the in-memory history with the persisted one, dropping
// records older than the retention window. Reloaded records are not
// visible toasts.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}

	records, err := s.persist.LoadHistory(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = s.items[:0]
	for _, record := range records {
		if record.Timestamp.Before(cutoff) {
			continue
		}
		s.items = append(s.items, fromRecord(record))
	}

	s.logger.Info().Int("count", len(s.items)).Msg("Notification history loaded")
	return nil
}

// Add appends a notification and returns it with id and timestamp filled
// in. A critical notification hides concurrently visible normal-priority
// notifications of the same category so the display is not flooded.
func (s *Store) Add(n Notification) Notification {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	s.mu.Lock()

	if n.Priority == PriorityCritical {
		for i := range s.items {
			if s.items[i].IsVisible && s.items[i].Priority == PriorityNormal && s.items[i].Category == n.Category {
				s.items[i].IsVisible = false
			}
		}
	}

	s.items = append(s.items, n)
	s.persistLocked()
	s.mu.Unlock()

	metrics.NotificationsTotal.WithLabelValues(string(n.Type), string(n.Priority)).Inc()
	s.publish(events.TopicNotificationAdded, n.ID)

	return n
}

// Hide dismisses the toast but keeps the record in history.
func (s *Store) Hide(id string) bool {
	s.mu.Lock()
	hidden := false
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].IsVisible {
			s.items[i].IsVisible = false
			hidden = true
			break
		}
	}
	if hidden {
		s.persistLocked()
	}
	s.mu.Unlock()

	if hidden {
		s.publish(events.TopicNotificationHidden, id)
	}
	return hidden
}

// Delete removes a notification permanently.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	deleted := false
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			deleted = true
			break
		}
	}
	if deleted {
		s.persistLocked()
	}
	s.mu.Unlock()

	if deleted {
		s.publish(events.TopicNotificationDeleted, id)
	}
	return deleted
}

// MarkRead sets the read flag.
func (s *Store) MarkRead(id string, read bool) bool {
	s.mu.Lock()
	marked := false
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = read
			marked = true
			break
		}
	}
	if marked {
		s.persistLocked()
	}
	s.mu.Unlock()

	if marked {
		s.publish(events.TopicNotificationRead, id)
	}
	return marked
}

// ClearAll removes the whole history.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.items = s.items[:0]
	s.persistLocked()
	s.mu.Unlock()

	s.publish(events.TopicNotificationCleared, "")
}

// ClearByCategory removes every notification with the given category and
// returns how many were removed.
func (s *Store) ClearByCategory(category string) int {
	s.mu.Lock()
	kept := s.items[:0]
	removed := 0
	for _, n := range s.items {
		if n.Category == category {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	s.items = kept
	if removed > 0 {
		s.persistLocked()
	}
	s.mu.Unlock()

	if removed > 0 {
		s.publish(events.TopicNotificationCleared, category)
	}
	return removed
}

// List returns a copy of the history, oldest first.
func (s *Store) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Visible returns the notifications currently shown as toasts.
func (s *Store) Visible() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0)
	for _, n := range s.items {
		if n.IsVisible {
			out = append(out, n)
		}
	}
	return out
}

// Stats returns counters over the history.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ByType:     make(map[Type]int),
		ByPriority: make(map[Priority]int),
	}
	for _, n := range s.items {
		stats.Total++
		if !n.IsRead {
			stats.Unread++
		}
		if n.IsVisible {
			stats.Visible++
		}
		stats.ByType[n.Type]++
		stats.ByPriority[n.Priority]++
	}
	return stats
}

// persistLocked writes the non-temporary subset, capped to the most recent
// maxItems records. Must be called with the lock held. Persistence errors
// are logged, never surfaced: losing a history write must not fail the
// mutation that caused it.
func (s *Store) persistLocked() {
	if s.persist == nil {
		return
	}

	records := make([]storage.NotificationRecord, 0, len(s.items))
	for _, n := range s.items {
		if n.IsTemporary {
			continue
		}
		records = append(records, n.record())
	}
	if len(records) > s.maxItems {
		records = records[len(records)-s.maxItems:]
	}

	if err := s.persist.SaveHistory(context.Background(), records); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist notification history")
	}
}

func (s *Store) publish(topic events.Topic, id string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, id)
}
