package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry is the authoritative in-process map of tracked sessions. All
// mutations go through it; reads return value copies so callers never hold
// a reference into the map. Updates for the same id are serialized by the
// registry lock, giving whole-record read consistency.
type Registry struct {
	sessions map[int64]*Session
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		logger:   logger.With().Str("component", "session-registry").Logger(),
	}
}

// Register starts tracking a session. It fails with ErrDuplicateTracking
// when the id is already present.
func (r *Registry) Register(s Session) error {
	if s.ID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSessionID, s.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("%w: session %d", ErrDuplicateTracking, s.ID)
	}

	if s.State == "" {
		s.State = StateStarting
	}
	s.LastUpdate = time.Now()

	copied := s
	r.sessions[s.ID] = &copied

	r.logger.Info().
		Int64("session_id", s.ID).
		Int64("station_id", s.StationID).
		Str("state", string(s.State)).
		Int("planned_minutes", s.PlannedDurationMinutes).
		Msg("Session registered")

	return nil
}

// Get returns a copy of the session, if tracked.
func (r *Registry) Get(id int64) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Update applies patch to the session under the registry lock and returns
// the resulting copy. The patch must not change State; use Transition.
func (r *Registry) Update(id int64, patch func(*Session)) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: session %d", ErrNotTracked, id)
	}

	state := s.State
	patch(s)
	s.State = state
	s.LastUpdate = time.Now()

	return *s, nil
}

// Transition moves the session to next, enforcing the lifecycle state
// machine: STARTING -> ACTIVE, ACTIVE <-> PAUSED, any non-terminal ->
// TERMINATED | CANCELLED. Terminal states are irreversible.
func (r *Registry) Transition(id int64, next State) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: session %d", ErrNotTracked, id)
	}

	if !s.State.CanTransitionTo(next) {
		return Session{}, fmt.Errorf("%w: %s -> %s (session %d)", ErrInvalidTransition, s.State, next, id)
	}

	prev := s.State
	s.State = next
	s.LastUpdate = time.Now()

	r.logger.Debug().
		Int64("session_id", id).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("Session state transition")

	return *s, nil
}

// Remove stops tracking a session. It is idempotent: removing an unknown id
// is a no-op. Callers must stop the session's clock before removal.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)

	r.logger.Info().Int64("session_id", id).Msg("Session removed from registry")
}

// ListActive returns copies of all sessions in ACTIVE state.
func (r *Registry) ListActive() []Session {
	return r.listByState(StateActive)
}

// ListPaused returns copies of all sessions in PAUSED state.
func (r *Registry) ListPaused() []Session {
	return r.listByState(StatePaused)
}

func (r *Registry) listByState(state State) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.State == state {
			out = append(out, *s)
		}
	}
	return out
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
