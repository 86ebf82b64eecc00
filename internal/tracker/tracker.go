package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/netcafe-labs/postetrack/internal/api"
	"github.com/netcafe-labs/postetrack/internal/billing"
	"github.com/netcafe-labs/postetrack/internal/events"
	"github.com/netcafe-labs/postetrack/internal/metrics"
	"github.com/netcafe-labs/postetrack/internal/notify"
	"github.com/netcafe-labs/postetrack/internal/policy"
	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/netcafe-labs/postetrack/internal/timer"
	"github.com/rs/zerolog"
)

// SessionAPI is the slice of the backend session API the tracker drives.
type SessionAPI interface {
	Start(ctx context.Context, req api.StartRequest) (*session.Session, error)
	Pause(ctx context.Context, sessionID int64, reason string) error
	Resume(ctx context.Context, sessionID int64) error
	Extend(ctx context.Context, sessionID int64, extraMinutes int) error
	Terminate(ctx context.Context, sessionID int64, payment api.PaymentInfo) (*api.TerminateResult, error)
	Cancel(ctx context.Context, sessionID int64, reason string) error
	ListActive(ctx context.Context) ([]session.Session, error)
	ListPaused(ctx context.Context) ([]session.Session, error)
}

// SubscriptionAPI debits consumed subscription hours on termination.
type SubscriptionAPI interface {
	ConsumeHours(ctx context.Context, id int64, hours float64, sessionID int64) error
}

// Tracker orchestrates the session lifecycle: it calls the backend API,
// mirrors the acknowledged state into the registry, drives the per-session
// clocks and keeps persisted snapshots current. The backend is authoritative;
// the tracker never mutates a session the backend has not acknowledged.
type Tracker struct {
	registry  *session.Registry
	engine    *timer.Engine
	resolver  *billing.Resolver
	notifier  *notify.Manager
	alerts    *notify.Store
	sessions  SessionAPI
	subs      SubscriptionAPI
	snapshots storage.SessionStore
	admission *policy.Engine
	bus       *events.Bus
	logger    zerolog.Logger
}

// New creates a tracker. The admission engine and snapshot store may be nil.
func New(
	registry *session.Registry,
	engine *timer.Engine,
	resolver *billing.Resolver,
	notifier *notify.Manager,
	alerts *notify.Store,
	sessions SessionAPI,
	subs SubscriptionAPI,
	snapshots storage.SessionStore,
	admission *policy.Engine,
	bus *events.Bus,
	logger zerolog.Logger,
) *Tracker {
	return &Tracker{
		registry:  registry,
		engine:    engine,
		resolver:  resolver,
		notifier:  notifier,
		alerts:    alerts,
		sessions:  sessions,
		subs:      subs,
		snapshots: snapshots,
		admission: admission,
		bus:       bus,
		logger:    logger.With().Str("component", "tracker").Logger(),
	}
}

// AdmissionDeniedError reports a policy denial.
type AdmissionDeniedError struct {
	Reason string
}

func (e *AdmissionDeniedError) Error() string {
	return fmt.Sprintf("session admission denied: %s", e.Reason)
}

// StartSession asks the backend to open a session, mirrors it locally and
// starts its clock.
func (t *Tracker) StartSession(ctx context.Context, req api.StartRequest) (*session.Session, error) {
	if t.admission != nil {
		decision, err := t.admission.Evaluate(ctx, policy.Input{
			StationID:              req.StationID,
			ClientID:               req.ClientID,
			SubscriptionID:         req.SubscriptionID,
			PlannedDurationMinutes: req.PlannedDurationMinutes,
			Time:                   policy.TimeInput(time.Now()),
		})
		if err != nil {
			return nil, fmt.Errorf("evaluate admission policy: %w", err)
		}
		if !decision.Allow {
			t.warn("Session refused", decision.Reason)
			return nil, &AdmissionDeniedError{Reason: decision.Reason}
		}
	}

	s, err := t.sessions.Start(ctx, req)
	if err != nil {
		t.apiFailure("Could not start session", err)
		return nil, err
	}

	if err := t.registry.Register(*s); err != nil {
		return nil, fmt.Errorf("mirror session %d: %w", s.ID, err)
	}

	if s.State == session.StateActive {
		if err := t.engine.StartClock(s.ID); err != nil {
			t.logger.Error().Err(err).Int64("session_id", s.ID).Msg("Failed to start clock")
		}
	}

	t.saveSnapshot(ctx, *s)
	t.publish(events.TopicSessionStarted, *s)
	t.publishStationStatus(s.StationID, true)
	metrics.SessionsStartedTotal.Inc()
	t.updateGauges()

	t.logger.Info().
		Int64("session_id", s.ID).
		Int64("station_id", s.StationID).
		Int("planned_minutes", s.PlannedDurationMinutes).
		Msg("Session started")

	return s, nil
}

// Pause suspends a running session. The clock stops before the state flips
// so no tick can observe a paused session.
func (t *Tracker) Pause(ctx context.Context, sessionID int64, reason string) error {
	if err := t.sessions.Pause(ctx, sessionID, reason); err != nil {
		t.apiFailure("Could not pause session", err)
		return err
	}

	t.engine.StopClock(sessionID)

	if _, err := t.registry.Transition(sessionID, session.StatePaused); err != nil {
		return err
	}

	now := time.Now()
	s, err := t.registry.Update(sessionID, func(s *session.Session) {
		s.PausedAt = &now
	})
	if err != nil {
		return err
	}

	t.saveSnapshot(ctx, s)
	t.publish(events.TopicSessionPaused, s)
	t.updateGauges()

	t.logger.Info().Int64("session_id", sessionID).Str("reason", reason).Msg("Session paused")
	return nil
}

// Resume reactivates a paused session, folding the pause interval into
// PausedMinutesTotal so it never counts as elapsed time.
func (t *Tracker) Resume(ctx context.Context, sessionID int64) error {
	if err := t.sessions.Resume(ctx, sessionID); err != nil {
		t.apiFailure("Could not resume session", err)
		return err
	}

	if _, err := t.registry.Transition(sessionID, session.StateActive); err != nil {
		return err
	}

	now := time.Now()
	s, err := t.registry.Update(sessionID, func(s *session.Session) {
		if s.PausedAt != nil {
			s.PausedMinutesTotal += int(now.Sub(*s.PausedAt).Minutes())
			s.PausedAt = nil
		}
	})
	if err != nil {
		return err
	}

	if err := t.engine.StartClock(sessionID); err != nil {
		t.logger.Error().Err(err).Int64("session_id", sessionID).Msg("Failed to restart clock")
	}

	t.saveSnapshot(ctx, s)
	t.publish(events.TopicSessionResumed, s)
	t.updateGauges()

	t.logger.Info().Int64("session_id", sessionID).Msg("Session resumed")
	return nil
}

// Extend grows the planned duration and re-arms the notification thresholds
// that the new remaining time no longer crosses.
func (t *Tracker) Extend(ctx context.Context, sessionID int64, extraMinutes int) error {
	if err := t.sessions.Extend(ctx, sessionID, extraMinutes); err != nil {
		t.apiFailure("Could not extend session", err)
		return err
	}

	s, err := t.registry.Update(sessionID, func(s *session.Session) {
		s.PlannedDurationMinutes += extraMinutes
		s.IsExpired = false
	})
	if err != nil {
		return err
	}

	info := timer.ComputeTimeInfo(&s, time.Now())
	t.notifier.ResetThresholds(sessionID, info.Remaining)

	t.saveSnapshot(ctx, s)
	t.publish(events.TopicSessionTick, s)

	t.logger.Info().
		Int64("session_id", sessionID).
		Int("extra_minutes", extraMinutes).
		Int("planned_minutes", s.PlannedDurationMinutes).
		Msg("Session extended")
	return nil
}

// Terminate settles the session with the backend, debits subscription hours
// and stops tracking it. The clock stops before the registry entry goes
// away so no tick can fire against a removed session.
func (t *Tracker) Terminate(ctx context.Context, sessionID int64, payment api.PaymentInfo) (*api.TerminateResult, error) {
	result, err := t.sessions.Terminate(ctx, sessionID, payment)
	if err != nil {
		t.apiFailure("Could not terminate session", err)
		return nil, err
	}

	t.engine.StopClock(sessionID)

	if _, err := t.registry.Transition(sessionID, session.StateTerminated); err != nil {
		t.logger.Warn().Err(err).Int64("session_id", sessionID).Msg("Terminate transition rejected")
	}

	s, err := t.registry.Update(sessionID, func(s *session.Session) {
		s.EstimatedCost = result.FinalCost
		s.AmountPaid = payment.AmountPaid
		s.AmountDue = result.AmountDue
	})
	if err == nil {
		t.debitSubscription(ctx, s)
		t.saveSnapshot(ctx, s)
		t.publish(events.TopicSessionEnded, s)
		t.publishStationStatus(s.StationID, false)

		metrics.SessionFinalCost.Observe(result.FinalCost)
		if s.SubscriptionEconomy > 0 {
			metrics.SubscriptionEconomyTotal.Add(s.SubscriptionEconomy)
		}
	}

	t.notifier.StopTracking(sessionID)
	t.registry.Remove(sessionID)
	metrics.SessionsEndedTotal.WithLabelValues("terminated").Inc()
	t.updateGauges()

	t.logger.Info().
		Int64("session_id", sessionID).
		Float64("final_cost", result.FinalCost).
		Float64("amount_due", result.AmountDue).
		Msg("Session terminated")

	return result, nil
}

// Cancel aborts the session without settlement. A non-empty reason is
// enforced by the API client.
func (t *Tracker) Cancel(ctx context.Context, sessionID int64, reason string) error {
	if err := t.sessions.Cancel(ctx, sessionID, reason); err != nil {
		t.apiFailure("Could not cancel session", err)
		return err
	}

	t.engine.StopClock(sessionID)

	var stationID int64
	if s, err := t.registry.Transition(sessionID, session.StateCancelled); err == nil {
		stationID = s.StationID
		t.saveSnapshot(ctx, s)
		t.publish(events.TopicSessionEnded, s)
	}

	t.notifier.StopTracking(sessionID)
	t.registry.Remove(sessionID)
	if stationID > 0 {
		t.publishStationStatus(stationID, false)
	}
	metrics.SessionsEndedTotal.WithLabelValues("cancelled").Inc()
	t.updateGauges()

	t.logger.Info().Int64("session_id", sessionID).Str("reason", reason).Msg("Session cancelled")
	return nil
}

// StopTracking drops the session from the local mirror without touching the
// backend. Used when another frontend takes the session over.
func (t *Tracker) StopTracking(sessionID int64) {
	t.engine.StopClock(sessionID)
	t.notifier.StopTracking(sessionID)
	t.registry.Remove(sessionID)
	t.updateGauges()

	t.logger.Info().Int64("session_id", sessionID).Msg("Stopped tracking session")
}

// Recover rebuilds the local mirror after a restart: the backend's active
// and paused sessions are re-registered and active clocks restarted. When
// the backend is unreachable, persisted snapshots fill in so tracking
// resumes in a degraded mode.
func (t *Tracker) Recover(ctx context.Context) error {
	sessions, err := t.backendSessions(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Backend unreachable, recovering from snapshots")
		sessions, err = t.snapshotSessions(ctx)
		if err != nil {
			return fmt.Errorf("recover sessions: %w", err)
		}
	}

	recovered := 0
	for _, s := range sessions {
		if s.State.Terminal() {
			continue
		}
		if err := t.registry.Register(s); err != nil {
			t.logger.Warn().Err(err).Int64("session_id", s.ID).Msg("Skipping session during recovery")
			continue
		}
		if s.State == session.StateActive {
			if err := t.engine.StartClock(s.ID); err != nil {
				t.logger.Error().Err(err).Int64("session_id", s.ID).Msg("Failed to restart clock during recovery")
			}
		}
		recovered++
	}

	t.updateGauges()
	t.logger.Info().Int("count", recovered).Msg("Session tracking recovered")
	return nil
}

func (t *Tracker) backendSessions(ctx context.Context) ([]session.Session, error) {
	active, err := t.sessions.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	paused, err := t.sessions.ListPaused(ctx)
	if err != nil {
		return nil, err
	}
	return append(active, paused...), nil
}

func (t *Tracker) snapshotSessions(ctx context.Context) ([]session.Session, error) {
	if t.snapshots == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}

	snapshots, err := t.snapshots.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]session.Session, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, session.Session{
			ID:                     snap.ID,
			State:                  session.State(snap.State),
			StationID:              snap.StationID,
			ClientID:               snap.ClientID,
			SubscriptionID:         snap.SubscriptionID,
			TariffPlanID:           snap.TariffPlanID,
			StartTime:              snap.StartTime,
			PlannedDurationMinutes: snap.PlannedDurationMinutes,
			PausedMinutesTotal:     snap.PausedMinutesTotal,
			EstimatedCost:          snap.EstimatedCost,
			AmountPaid:             snap.AmountPaid,
			AmountDue:              snap.AmountDue,
			SubscriptionEconomy:    snap.SubscriptionEconomy,
		})
	}
	return out, nil
}

// debitSubscription reports consumed hours to the subscription API. The
// backend clamps the debit to the remaining balance; a failed debit is
// surfaced as an alert, never as a terminate failure.
func (t *Tracker) debitSubscription(ctx context.Context, s session.Session) {
	if t.subs == nil || s.SubscriptionID <= 0 || s.ElapsedMinutes <= 0 {
		return
	}

	hours := float64(s.ElapsedMinutes) / 60
	if err := t.subs.ConsumeHours(ctx, s.SubscriptionID, hours, s.ID); err != nil {
		t.logger.Error().Err(err).
			Int64("subscription_id", s.SubscriptionID).
			Float64("hours", hours).
			Msg("Failed to debit subscription hours")
		t.warn("Subscription debit failed", err.Error())
		return
	}

	t.resolver.InvalidateSubscription(s.SubscriptionID)
}

func (t *Tracker) saveSnapshot(ctx context.Context, s session.Session) {
	if t.snapshots == nil {
		return
	}

	snap := storage.SessionSnapshot{
		ID:                     s.ID,
		State:                  string(s.State),
		StationID:              s.StationID,
		ClientID:               s.ClientID,
		SubscriptionID:         s.SubscriptionID,
		TariffPlanID:           s.TariffPlanID,
		StartTime:              s.StartTime,
		PlannedDurationMinutes: s.PlannedDurationMinutes,
		PausedMinutesTotal:     s.PausedMinutesTotal,
		EstimatedCost:          s.EstimatedCost,
		AmountPaid:             s.AmountPaid,
		AmountDue:              s.AmountDue,
		SubscriptionEconomy:    s.SubscriptionEconomy,
		UpdatedAt:              time.Now(),
	}
	if err := t.snapshots.Upsert(ctx, snap); err != nil {
		t.logger.Error().Err(err).Int64("session_id", s.ID).Msg("Failed to persist session snapshot")
	}
}

func (t *Tracker) apiFailure(title string, err error) {
	if t.alerts == nil {
		return
	}
	t.alerts.Add(notify.Notification{
		Type:       notify.TypeError,
		Priority:   notify.PriorityHigh,
		Category:   "error",
		Title:      title,
		Message:    err.Error(),
		IsVisible:  true,
		CanDismiss: true,
		DurationMs: notify.DefaultToastDurationMs,
	})
}

func (t *Tracker) warn(title, message string) {
	if t.alerts == nil {
		return
	}
	t.alerts.Add(notify.Notification{
		Type:       notify.TypeWarning,
		Priority:   notify.PriorityNormal,
		Category:   "session",
		Title:      title,
		Message:    message,
		IsVisible:  true,
		CanDismiss: true,
		DurationMs: notify.DefaultToastDurationMs,
	})
}

func (t *Tracker) publish(topic events.Topic, s session.Session) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(topic, s)
}

func (t *Tracker) publishStationStatus(stationID int64, occupied bool) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.TopicStationStatus, events.StationStatus{
		StationID: stationID,
		Occupied:  occupied,
	})
}

func (t *Tracker) updateGauges() {
	metrics.SessionsActive.Set(float64(len(t.registry.ListActive())))
	metrics.SessionsPaused.Set(float64(len(t.registry.ListPaused())))
}
