package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultCacheSize bounds the tariff plan and subscription caches.
	DefaultCacheSize = 256

	// DefaultCacheTTL is how long a cached plan or subscription stays fresh.
	DefaultCacheTTL = 30 * time.Second
)

// Config holds resolver configuration.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Resolver computes session cost against a tariff plan, applying an active
// subscription benefit when one is supplied. Plans come from storage and
// subscriptions from the subscription API; both sit behind expiring caches
// because the resolver runs on every tick of every session.
type Resolver struct {
	tariffs       storage.TariffStore
	subscriptions SubscriptionSource
	planCache     *expirable.LRU[string, storage.TariffPlan]
	subCache      *expirable.LRU[int64, Subscription]
	logger        zerolog.Logger
}

// NewResolver creates a cost resolver.
func NewResolver(tariffs storage.TariffStore, subscriptions SubscriptionSource, cfg Config, logger zerolog.Logger) *Resolver {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Resolver{
		tariffs:       tariffs,
		subscriptions: subscriptions,
		planCache:     expirable.NewLRU[string, storage.TariffPlan](cfg.CacheSize, nil, cfg.CacheTTL),
		subCache:      expirable.NewLRU[int64, Subscription](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:        logger.With().Str("component", "billing-resolver").Logger(),
	}
}

// ResolveCost resolves the current cost of elapsedMinutes on a station. A
// subscriptionID of zero means no subscription. An expired or exhausted
// subscription is not an error: the normal tariff applies and
// SubscriptionApplied is false.
func (r *Resolver) ResolveCost(ctx context.Context, stationID int64, elapsedMinutes int, tariffPlanID string, subscriptionID int64) (CostResult, error) {
	result := CostResult{TariffPlanID: tariffPlanID}

	if elapsedMinutes <= 0 || tariffPlanID == "" {
		return result, nil
	}

	plan, err := r.plan(ctx, tariffPlanID)
	if err != nil {
		return result, fmt.Errorf("resolve tariff plan %s: %w", tariffPlanID, err)
	}

	elapsed := float64(elapsedMinutes)
	normal := planCost(plan, elapsed)
	final := normal

	if subscriptionID > 0 {
		if sub := r.subscription(ctx, subscriptionID); sub.Usable(time.Now()) {
			switch sub.BenefitType {
			case BenefitHoursOffered:
				freeMinutes := math.Min(elapsed, *sub.RemainingHours*60)
				if freeMinutes > 0 {
					final = planCost(plan, elapsed-freeMinutes)
					result.SubscriptionApplied = true
				}
			case BenefitPercentageDiscount:
				discount := math.Min(math.Max(sub.BenefitValue, 0), 100)
				final = normal * (1 - discount/100)
				result.SubscriptionApplied = true
			}
		}
	}

	result.Cost = round2(final)
	result.Economy = round2(math.Max(0, normal-final))
	return result, nil
}

// InvalidateSubscription drops a cached subscription, forcing a refetch on
// the next tick. Called after hours are consumed.
func (r *Resolver) InvalidateSubscription(id int64) {
	r.subCache.Remove(id)
}

func (r *Resolver) plan(ctx context.Context, id string) (storage.TariffPlan, error) {
	if plan, ok := r.planCache.Get(id); ok {
		return plan, nil
	}

	plan, err := r.tariffs.Get(ctx, id)
	if err != nil {
		return storage.TariffPlan{}, err
	}

	r.planCache.Add(id, *plan)
	return *plan, nil
}

// subscription returns nil when the subscription cannot be fetched; the
// caller falls back to the normal tariff.
func (r *Resolver) subscription(ctx context.Context, id int64) *Subscription {
	if sub, ok := r.subCache.Get(id); ok {
		return &sub
	}

	if r.subscriptions == nil {
		return nil
	}

	sub, err := r.subscriptions.Get(ctx, id)
	if err != nil {
		r.logger.Warn().Err(err).Int64("subscription_id", id).Msg("Subscription unavailable, billing at normal tariff")
		return nil
	}

	r.subCache.Add(id, *sub)
	return sub
}

// planCost prices a duration in minutes against a plan. Minutes may be
// fractional: subscription hour benefits split durations below the minute.
func planCost(plan storage.TariffPlan, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}

	switch plan.Kind {
	case storage.TariffHourly:
		return plan.HourlyRate * minutes / 60

	case storage.TariffFlat:
		bracket := plan.FlatMinutes
		if bracket <= 0 {
			bracket = 60
		}
		brackets := math.Ceil(minutes / float64(bracket))
		return brackets * plan.FlatPrice

	case storage.TariffTiered:
		return tieredCost(plan.Tiers, minutes)

	default:
		return 0
	}
}

// tieredCost applies each tier to its own minute range cumulatively; time
// past the last bounded tier keeps the last tier's rate.
func tieredCost(tiers []storage.TariffTier, minutes float64) float64 {
	cost := 0.0
	covered := 0.0
	lastRate := 0.0

	for _, tier := range tiers {
		lo := math.Max(float64(tier.FromMinute), covered)
		hi := minutes
		if tier.ToMinute > 0 {
			hi = math.Min(hi, float64(tier.ToMinute))
		}
		if hi > lo {
			cost += (hi - lo) / 60 * tier.RatePerHour
			covered = hi
		}
		lastRate = tier.RatePerHour
	}

	if minutes > covered && lastRate > 0 {
		cost += (minutes - covered) / 60 * lastRate
	}

	return cost
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
