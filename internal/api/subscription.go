package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/netcafe-labs/postetrack/internal/billing"
	"github.com/netcafe-labs/postetrack/internal/metrics"
	"github.com/rs/zerolog"
)

// SubscriptionClient calls the backend subscription API. It satisfies
// billing.SubscriptionSource so the cost resolver can fetch benefits.
type SubscriptionClient struct {
	baseURL  string
	token    string
	attempts int
	http     *http.Client
	logger   zerolog.Logger
}

// NewSubscriptionClient creates a subscription API client.
func NewSubscriptionClient(cfg Config, logger zerolog.Logger) *SubscriptionClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}

	return &SubscriptionClient{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		attempts: cfg.RetryAttempts,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With().Str("component", "subscription-api").Logger(),
	}
}

// Get fetches a subscription by id.
func (c *SubscriptionClient) Get(ctx context.Context, id int64) (*billing.Subscription, error) {
	if id <= 0 {
		return nil, fmt.Errorf("subscription id %d: %w", id, ErrInvalidSubscriptionID)
	}

	var sub billing.Subscription
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/subscriptions/%d", id), nil, &sub); err != nil {
		return nil, fmt.Errorf("get subscription %d: %w", id, err)
	}
	return &sub, nil
}

// CheckAvailability reports whether the subscription can cover hours.
func (c *SubscriptionClient) CheckAvailability(ctx context.Context, id int64, hours float64) (bool, error) {
	if id <= 0 {
		return false, fmt.Errorf("subscription id %d: %w", id, ErrInvalidSubscriptionID)
	}

	var out struct {
		Available bool `json:"available"`
	}
	path := fmt.Sprintf("/subscriptions/%d/availability?hours=%g", id, hours)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, fmt.Errorf("check availability of subscription %d: %w", id, err)
	}
	return out.Available, nil
}

// ConsumeHours debits consumed hours from the subscription. Called on
// session termination; the backend owns the balance.
func (c *SubscriptionClient) ConsumeHours(ctx context.Context, id int64, hours float64, sessionID int64) error {
	if id <= 0 {
		return fmt.Errorf("subscription id %d: %w", id, ErrInvalidSubscriptionID)
	}
	if hours <= 0 {
		return nil
	}

	body := map[string]any{"hours": hours}
	if sessionID > 0 {
		body["session_id"] = sessionID
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/subscriptions/%d/consume", id), body, nil); err != nil {
		return fmt.Errorf("consume %g hours on subscription %d: %w", hours, id, err)
	}
	return nil
}

func (c *SubscriptionClient) do(ctx context.Context, method, path string, body, out any) error {
	operation := method + " " + path

	err := retry.Do(func() error {
		return doJSON(ctx, c.http, c.baseURL, c.token, method, path, body, out)
	},
		retry.Context(ctx),
		retry.Attempts(uint(c.attempts)),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		metrics.APIErrorsTotal.WithLabelValues(operation).Inc()
		c.logger.Error().Err(err).Str("operation", operation).Msg("Backend request failed")
	}
	return err
}
