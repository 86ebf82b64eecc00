package api

import (
	"errors"
	"fmt"
)

var (
	// ErrReasonRequired is returned by Cancel when no reason is supplied.
	ErrReasonRequired = errors.New("a non-empty reason is required")

	// ErrInvalidSubscriptionID rejects non-positive subscription ids before
	// any network call.
	ErrInvalidSubscriptionID = errors.New("invalid subscription id")
)

// StartRequest asks the backend to open a session on a station.
type StartRequest struct {
	StationID              int64  `json:"station_id"`
	PlannedDurationMinutes int    `json:"planned_duration_minutes"`
	ClientID               int64  `json:"client_id,omitempty"`
	SubscriptionID         int64  `json:"subscription_id,omitempty"`
	TariffPlanID           string `json:"tariff_plan_id,omitempty"`
}

// PaymentInfo accompanies a terminate request.
type PaymentInfo struct {
	AmountPaid    float64 `json:"amount_paid"`
	PaymentMethod string  `json:"payment_method"`
}

// TerminateResult is the backend's settlement of a terminated session.
type TerminateResult struct {
	FinalCost float64 `json:"final_cost"`
	AmountDue float64 `json:"amount_due"`
}

// CostEstimate is the backend's answer to a cost calculation request.
type CostEstimate struct {
	Cost                float64 `json:"cost"`
	SubscriptionApplied bool    `json:"subscription_applied"`
	Economy             float64 `json:"economy"`
}

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}
