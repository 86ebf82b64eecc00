package billing

import (
	"context"
	"time"
)

// BenefitType is the kind of advantage a subscription grants.
type BenefitType string

const (
	BenefitHoursOffered       BenefitType = "HOURS_OFFERED"
	BenefitPercentageDiscount BenefitType = "PERCENTAGE_DISCOUNT"
)

// Subscription is the billing view of a client subscription. The core never
// mutates subscriptions; hour debits go through the subscription API on
// session termination.
type Subscription struct {
	ID             int64       `json:"id"`
	BenefitType    BenefitType `json:"benefit_type"`
	BenefitValue   float64     `json:"benefit_value"`
	RemainingHours *float64    `json:"remaining_hours,omitempty"`
	ValidUntil     time.Time   `json:"valid_until"`
}

// Usable reports whether the subscription can be applied to a session right
// now: still valid, and either a discount or with hours left.
func (s *Subscription) Usable(now time.Time) bool {
	if s == nil || !s.ValidUntil.After(now) {
		return false
	}
	if s.BenefitType == BenefitPercentageDiscount {
		return true
	}
	return s.RemainingHours != nil && *s.RemainingHours > 0
}

// SubscriptionSource fetches subscriptions by id. Implemented by the
// subscription API client.
type SubscriptionSource interface {
	Get(ctx context.Context, id int64) (*Subscription, error)
}

// CostResult is the outcome of a cost resolution.
type CostResult struct {
	Cost                float64 `json:"cost"`
	SubscriptionApplied bool    `json:"subscription_applied"`
	Economy             float64 `json:"economy"`
	TariffPlanID        string  `json:"tariff_plan_id"`
}
