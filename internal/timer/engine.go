package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netcafe-labs/postetrack/internal/billing"
	"github.com/netcafe-labs/postetrack/internal/events"
	"github.com/netcafe-labs/postetrack/internal/metrics"
	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/rs/zerolog"
)

const (
	// DefaultTickInterval is the cadence at which each session clock
	// recomputes timing and cost.
	DefaultTickInterval = time.Second

	// ProgressOverrunCap bounds progressPercent for sessions running past
	// their planned duration.
	ProgressOverrunCap = 200.0
)

// CostResolver computes the running cost of a session. Implemented by the
// billing resolver.
type CostResolver interface {
	ResolveCost(ctx context.Context, stationID int64, elapsedMinutes int, tariffPlanID string, subscriptionID int64) (billing.CostResult, error)
}

// TickSink receives the per-tick snapshot after the registry has been
// updated. Implemented by the notification manager.
type TickSink interface {
	OnTick(s session.Session, info session.TimeInfo)
}

// Config holds timer engine configuration.
type Config struct {
	TickInterval time.Duration
}

// Engine owns one clock per actively running session. Each tick recomputes
// the session's timing snapshot, refreshes its cost through the resolver,
// writes the result into the registry and hands the snapshot to the sink.
// Ticks for the same session never run concurrently; the scheduler fires
// them sequentially per registration.
type Engine struct {
	registry  *session.Registry
	resolver  CostResolver
	sink      TickSink
	bus       *events.Bus
	clock     Clock
	scheduler Scheduler
	interval  time.Duration
	clocks    map[int64]CancelFunc
	logger    zerolog.Logger
	mu        sync.Mutex
}

// NewEngine creates a timer engine. A nil clock or scheduler falls back to
// real time.
func NewEngine(registry *session.Registry, resolver CostResolver, sink TickSink, bus *events.Bus, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	return &Engine{
		registry:  registry,
		resolver:  resolver,
		sink:      sink,
		bus:       bus,
		clock:     RealClock{},
		scheduler: TickerScheduler{},
		interval:  cfg.TickInterval,
		clocks:    make(map[int64]CancelFunc),
		logger:    logger.With().Str("component", "timer-engine").Logger(),
	}
}

// SetClock replaces the time source. Call before the first StartClock.
func (e *Engine) SetClock(c Clock) {
	e.clock = c
}

// SetScheduler replaces the tick scheduler. Call before the first StartClock.
func (e *Engine) SetScheduler(s Scheduler) {
	e.scheduler = s
}

// StartClock starts the per-session clock. Starting a clock that is already
// running is a no-op. The session must be tracked and ACTIVE. The first tick
// runs synchronously so the registry reflects current timing immediately.
func (e *Engine) StartClock(sessionID int64) error {
	s, ok := e.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("start clock for session %d: %w", sessionID, session.ErrNotTracked)
	}
	if s.State != session.StateActive {
		return fmt.Errorf("start clock for session %d in state %s: %w", sessionID, s.State, session.ErrInvalidState)
	}

	e.mu.Lock()
	if _, running := e.clocks[sessionID]; running {
		e.mu.Unlock()
		e.logger.Debug().Int64("session_id", sessionID).Msg("Clock already running")
		return nil
	}
	e.clocks[sessionID] = e.scheduler.Schedule(e.interval, func() {
		e.tick(sessionID)
	})
	e.mu.Unlock()

	e.logger.Info().Int64("session_id", sessionID).Msg("Clock started")
	e.tick(sessionID)
	return nil
}

// StopClock releases the session's clock. Safe to call when no clock is
// running; a stopped clock never fires again.
func (e *Engine) StopClock(sessionID int64) {
	e.mu.Lock()
	cancel, ok := e.clocks[sessionID]
	if ok {
		delete(e.clocks, sessionID)
	}
	e.mu.Unlock()

	if ok {
		cancel()
		e.logger.Info().Int64("session_id", sessionID).Msg("Clock stopped")
	}
}

// StopAll releases every running clock.
func (e *Engine) StopAll() {
	e.mu.Lock()
	cancels := make([]CancelFunc, 0, len(e.clocks))
	for id, cancel := range e.clocks {
		cancels = append(cancels, cancel)
		delete(e.clocks, id)
	}
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Running reports whether the session currently owns a clock.
func (e *Engine) Running(sessionID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.clocks[sessionID]
	return ok
}

func (e *Engine) tick(sessionID int64) {
	s, ok := e.registry.Get(sessionID)
	if !ok {
		// Session was removed under us; release the orphaned clock.
		e.StopClock(sessionID)
		return
	}
	if s.State != session.StateActive {
		return
	}

	now := e.clock.Now()
	info := ComputeTimeInfo(&s, now)

	cost, err := e.resolver.ResolveCost(context.Background(), s.StationID, info.ElapsedMinutes, s.TariffPlanID, s.SubscriptionID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("session_id", sessionID).Msg("Cost resolution failed, keeping previous estimate")
		cost = billing.CostResult{
			Cost:    s.EstimatedCost,
			Economy: s.SubscriptionEconomy,
		}
	}

	wasExpired := s.IsExpired

	updated, err := e.registry.Update(sessionID, func(s *session.Session) {
		s.ElapsedMinutes = info.ElapsedMinutes
		s.RemainingMinutes = info.RemainingMinutes
		s.ProgressPercent = info.ProgressPercent
		s.IsExpired = info.IsExpired
		s.EstimatedCost = cost.Cost
		s.AmountDue = cost.Cost - s.AmountPaid
		s.SubscriptionEconomy = cost.Economy
	})
	if err != nil {
		e.StopClock(sessionID)
		return
	}

	metrics.TicksTotal.Inc()
	if info.IsExpired && !wasExpired {
		metrics.SessionsExpiredTotal.Inc()
	}

	if e.sink != nil {
		e.sink.OnTick(updated, info)
	}
	if e.bus != nil {
		e.bus.Publish(events.TopicSessionTick, updated)
	}
}

// ComputeTimeInfo derives the timing snapshot for a session at instant now.
// Paused time does not count as elapsed. An unbounded session reports zero
// remaining time and never expires.
func ComputeTimeInfo(s *session.Session, now time.Time) session.TimeInfo {
	elapsed := now.Sub(s.StartTime) - time.Duration(s.PausedMinutesTotal)*time.Minute
	if s.PausedAt != nil {
		elapsed -= now.Sub(*s.PausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}

	info := session.TimeInfo{
		Elapsed:        elapsed,
		ElapsedMinutes: int(elapsed.Minutes()),
	}

	if !s.Bounded() {
		info.Unbounded = true
		return info
	}

	planned := time.Duration(s.PlannedDurationMinutes) * time.Minute
	remaining := planned - elapsed
	if remaining < 0 {
		remaining = 0
	}

	info.Remaining = remaining
	info.IsExpired = elapsed >= planned

	// Minute fields stay complementary: elapsed + remaining == planned
	// until expiry, then remaining pins to zero.
	info.RemainingMinutes = s.PlannedDurationMinutes - info.ElapsedMinutes
	if info.RemainingMinutes < 0 {
		info.RemainingMinutes = 0
	}

	progress := float64(elapsed) / float64(planned) * 100
	if progress < 0 {
		progress = 0
	}
	if progress > ProgressOverrunCap {
		progress = ProgressOverrunCap
	}
	info.ProgressPercent = progress

	return info
}
