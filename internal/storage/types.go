package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TariffKind represents the pricing rule of a tariff plan.
type TariffKind string

const (
	TariffHourly TariffKind = "HOURLY"
	TariffFlat   TariffKind = "FLAT"
	TariffTiered TariffKind = "TIERED"
)

// UnmarshalJSON implements json.Unmarshaler to normalize the kind to uppercase.
func (k *TariffKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := TariffKind(strings.ToUpper(s))

	switch normalized {
	case TariffHourly, TariffFlat, TariffTiered:
		*k = normalized
		return nil
	default:
		return fmt.Errorf("invalid tariff kind: %s (must be HOURLY, FLAT, or TIERED)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (k TariffKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(k))
}

// TariffTier is one minute range of a TIERED plan. A ToMinute of 0 means the
// tier is open-ended; the last tier's rate also covers minutes beyond it.
type TariffTier struct {
	FromMinute  int     `json:"from_minute"`
	ToMinute    int     `json:"to_minute"`
	RatePerHour float64 `json:"rate_per_hour"`
}

// TariffPlan defines how a session's duration is priced.
type TariffPlan struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Kind        TariffKind   `json:"kind"`
	HourlyRate  float64      `json:"hourly_rate,omitempty"`
	FlatPrice   float64      `json:"flat_price,omitempty"`
	FlatMinutes int          `json:"flat_minutes,omitempty"`
	Tiers       []TariffTier `json:"tiers,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NotificationRecord is the persisted form of a notification. Temporary
// notifications never reach storage, and visibility is not persisted: a
// reloaded record is history, not a live toast.
type NotificationRecord struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Priority   string    `json:"priority"`
	Category   string    `json:"category"`
	Message    string    `json:"message"`
	Title      string    `json:"title"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"is_read"`
	CanDismiss bool      `json:"can_dismiss"`
}

// SessionSnapshot mirrors a tracked session for recovery and reporting.
type SessionSnapshot struct {
	ID                     int64     `json:"id"`
	State                  string    `json:"state"`
	StationID              int64     `json:"station_id"`
	ClientID               int64     `json:"client_id,omitempty"`
	SubscriptionID         int64     `json:"subscription_id,omitempty"`
	TariffPlanID           string    `json:"tariff_plan_id"`
	StartTime              time.Time `json:"start_time"`
	PlannedDurationMinutes int       `json:"planned_duration_minutes"`
	PausedMinutesTotal     int       `json:"paused_minutes_total"`
	EstimatedCost          float64   `json:"estimated_cost"`
	AmountPaid             float64   `json:"amount_paid"`
	AmountDue              float64   `json:"amount_due"`
	SubscriptionEconomy    float64   `json:"subscription_economy"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Terminal reports whether the snapshot belongs to a finished session.
func (s *SessionSnapshot) Terminal() bool {
	return s.State == "TERMINATED" || s.State == "CANCELLED"
}
