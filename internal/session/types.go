package session

import (
	"time"
)

// State is the lifecycle state of a tracked session.
type State string

const (
	StateStarting   State = "STARTING"
	StateActive     State = "ACTIVE"
	StatePaused     State = "PAUSED"
	StateTerminated State = "TERMINATED"
	StateCancelled  State = "CANCELLED"
)

// Terminal reports whether the state is final. Terminal states accept no
// further transitions.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateCancelled
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s State) CanTransitionTo(next State) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StateStarting:
		return next == StateActive || next == StateTerminated || next == StateCancelled
	case StateActive:
		return next == StatePaused || next == StateTerminated || next == StateCancelled
	case StatePaused:
		return next == StateActive || next == StateTerminated || next == StateCancelled
	default:
		return false
	}
}

// Session is the local mirror of a server-side station session. Derived
// timing and cost fields are recomputed on every tick; the registry is the
// only writer.
type Session struct {
	ID             int64 `json:"id"`
	State          State `json:"state"`
	StationID      int64 `json:"station_id"`
	ClientID       int64 `json:"client_id,omitempty"`
	SubscriptionID int64 `json:"subscription_id,omitempty"`
	TariffPlanID   string `json:"tariff_plan_id"`

	StartTime              time.Time  `json:"start_time"`
	PlannedDurationMinutes int        `json:"planned_duration_minutes"`
	PausedMinutesTotal     int        `json:"paused_minutes_total"`
	PausedAt               *time.Time `json:"paused_at,omitempty"`

	// Derived, recomputed each tick.
	ElapsedMinutes   int     `json:"elapsed_minutes"`
	RemainingMinutes int     `json:"remaining_minutes"`
	ProgressPercent  float64 `json:"progress_percent"`
	IsExpired        bool    `json:"is_expired"`

	EstimatedCost       float64 `json:"estimated_cost"`
	AmountPaid          float64 `json:"amount_paid"`
	AmountDue           float64 `json:"amount_due"`
	SubscriptionEconomy float64 `json:"subscription_economy"`

	LastUpdate time.Time `json:"last_update"`
}

// Bounded reports whether the session has a planned duration. A planned
// duration of zero means open-ended: no expiry, no threshold alerts.
func (s *Session) Bounded() bool {
	return s.PlannedDurationMinutes > 0
}
