package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/netcafe-labs/postetrack/internal/metrics"
	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single backend request.
	DefaultTimeout = 10 * time.Second

	// DefaultRetryAttempts is how often a failed request is retried.
	DefaultRetryAttempts = 3

	// MinExtendMinutes and MaxExtendMinutes bound one extension request.
	MinExtendMinutes = 5
	MaxExtendMinutes = 240
)

// Config holds API client configuration.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryAttempts int
}

// SessionClient calls the backend session API. The backend is authoritative
// for every lifecycle mutation; the local registry only mirrors what the
// backend acknowledged. Requests are retried with backoff; a 4xx response is
// never retried.
type SessionClient struct {
	baseURL  string
	token    string
	attempts int
	http     *http.Client
	logger   zerolog.Logger
}

// NewSessionClient creates a session API client.
func NewSessionClient(cfg Config, logger zerolog.Logger) *SessionClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}

	return &SessionClient{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		attempts: cfg.RetryAttempts,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With().Str("component", "session-api").Logger(),
	}
}

// Start opens a session and returns the backend's view of it.
func (c *SessionClient) Start(ctx context.Context, req StartRequest) (*session.Session, error) {
	if req.StationID <= 0 {
		return nil, fmt.Errorf("start session: station id %d: %w", req.StationID, session.ErrInvalidSessionID)
	}
	if req.PlannedDurationMinutes < 0 {
		return nil, fmt.Errorf("start session: planned duration %d: %w", req.PlannedDurationMinutes, session.ErrInvalidDuration)
	}

	var s session.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &s); err != nil {
		return nil, fmt.Errorf("start session on station %d: %w", req.StationID, err)
	}
	return &s, nil
}

// Pause pauses a running session. The reason is optional.
func (c *SessionClient) Pause(ctx context.Context, sessionID int64, reason string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}

	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/pause", sessionID), body, nil); err != nil {
		return fmt.Errorf("pause session %d: %w", sessionID, err)
	}
	return nil
}

// Resume resumes a paused session.
func (c *SessionClient) Resume(ctx context.Context, sessionID int64) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/resume", sessionID), nil, nil); err != nil {
		return fmt.Errorf("resume session %d: %w", sessionID, err)
	}
	return nil
}

// Extend adds extraMinutes to the session's planned duration. Extensions
// are bounded to 5..240 minutes per request.
func (c *SessionClient) Extend(ctx context.Context, sessionID int64, extraMinutes int) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if extraMinutes < MinExtendMinutes || extraMinutes > MaxExtendMinutes {
		return fmt.Errorf("extend session %d by %d minutes: %w", sessionID, extraMinutes, session.ErrInvalidDuration)
	}

	body := map[string]int{"extra_minutes": extraMinutes}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/extend", sessionID), body, nil); err != nil {
		return fmt.Errorf("extend session %d: %w", sessionID, err)
	}
	return nil
}

// Terminate closes the session and returns the settlement.
func (c *SessionClient) Terminate(ctx context.Context, sessionID int64, payment PaymentInfo) (*TerminateResult, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, err
	}

	var result TerminateResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/terminate", sessionID), payment, &result); err != nil {
		return nil, fmt.Errorf("terminate session %d: %w", sessionID, err)
	}
	return &result, nil
}

// Cancel aborts the session. A non-empty reason is required.
func (c *SessionClient) Cancel(ctx context.Context, sessionID int64, reason string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if reason == "" {
		return fmt.Errorf("cancel session %d: %w", sessionID, ErrReasonRequired)
	}

	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/cancel", sessionID), body, nil); err != nil {
		return fmt.Errorf("cancel session %d: %w", sessionID, err)
	}
	return nil
}

// ListActive returns the backend's active sessions.
func (c *SessionClient) ListActive(ctx context.Context) ([]session.Session, error) {
	var out []session.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/active", nil, &out); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return out, nil
}

// ListPaused returns the backend's paused sessions.
func (c *SessionClient) ListPaused(ctx context.Context) ([]session.Session, error) {
	var out []session.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/paused", nil, &out); err != nil {
		return nil, fmt.Errorf("list paused sessions: %w", err)
	}
	return out, nil
}

// CalculateCost asks the backend to price minutes on a station.
func (c *SessionClient) CalculateCost(ctx context.Context, stationID int64, minutes int, subscriptionID int64) (*CostEstimate, error) {
	path := fmt.Sprintf("/stations/%d/cost?minutes=%d", stationID, minutes)
	if subscriptionID > 0 {
		path += fmt.Sprintf("&subscription_id=%d", subscriptionID)
	}

	var out CostEstimate
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("calculate cost for station %d: %w", stationID, err)
	}
	return &out, nil
}

func validSessionID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("session id %d: %w", id, session.ErrInvalidSessionID)
	}
	return nil
}

// do runs one JSON request with retries. Server errors and transport
// failures are retried with backoff; client errors fail immediately.
func (c *SessionClient) do(ctx context.Context, method, path string, body, out any) error {
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

// doJSON performs a single JSON round trip. Shared with the subscription
// client.
func doJSON(ctx context.Context, client *http.Client, baseURL, token, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Message != "" {
			apiErr.Message = msg.Message
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode < 500 {
			return retry.Unrecoverable(apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
