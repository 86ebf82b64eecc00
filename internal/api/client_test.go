package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.Handler) *SessionClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSessionClient(Config{BaseURL: srv.URL, RetryAttempts: 2}, zerolog.Nop())
}

func TestStart(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.StationID != 3 || req.PlannedDurationMinutes != 60 {
			t.Errorf("unexpected request body: %+v", req)
		}

		_ = json.NewEncoder(w).Encode(session.Session{
			ID:                     7,
			State:                  session.StateActive,
			StationID:              3,
			PlannedDurationMinutes: 60,
		})
	}))

	s, err := client.Start(context.Background(), StartRequest{StationID: 3, PlannedDurationMinutes: 60})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.ID != 7 || s.State != session.StateActive {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestStartValidation(t *testing.T) {
	client := NewSessionClient(Config{BaseURL: "http://unused"}, zerolog.Nop())

	if _, err := client.Start(context.Background(), StartRequest{StationID: 0}); !errors.Is(err, session.ErrInvalidSessionID) {
		t.Fatalf("expected station validation error, got %v", err)
	}
	if _, err := client.Start(context.Background(), StartRequest{StationID: 1, PlannedDurationMinutes: -5}); !errors.Is(err, session.ErrInvalidDuration) {
		t.Fatalf("expected duration validation error, got %v", err)
	}
}

func TestExtendBounds(t *testing.T) {
	// Validation happens before any network traffic.
	client := NewSessionClient(Config{BaseURL: "http://unused"}, zerolog.Nop())

	for _, minutes := range []int{0, 4, 241, -10} {
		if err := client.Extend(context.Background(), 1, minutes); !errors.Is(err, session.ErrInvalidDuration) {
			t.Fatalf("expected ErrInvalidDuration for %d minutes, got %v", minutes, err)
		}
	}
	if err := client.Extend(context.Background(), 0, 30); !errors.Is(err, session.ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	client := NewSessionClient(Config{BaseURL: "http://unused"}, zerolog.Nop())

	if err := client.Cancel(context.Background(), 1, ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
}

func TestTerminateReturnsSettlement(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/9/terminate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(TerminateResult{FinalCost: 12.5, AmountDue: 2.5})
	}))

	result, err := client.Terminate(context.Background(), 9, PaymentInfo{AmountPaid: 10, PaymentMethod: "cash"})
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if result.FinalCost != 12.5 || result.AmountDue != 2.5 {
		t.Fatalf("unexpected settlement: %+v", result)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]session.Session{{ID: 1, State: session.StateActive}})
	}))

	sessions, err := client.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "station occupied"})
	}))

	err := client.Pause(context.Background(), 5, "lunch")
	if err == nil {
		t.Fatal("expected an error")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "station occupied" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt for a 4xx, got %d", calls.Load())
	}
}

func TestSubscriptionClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subscriptions/4":
			remaining := 2.5
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":              4,
				"benefit_type":    "HOURS_OFFERED",
				"remaining_hours": remaining,
			})
		case "/subscriptions/4/availability":
			if r.URL.Query().Get("hours") != "1.5" {
				t.Errorf("unexpected hours query %q", r.URL.Query().Get("hours"))
			}
			_ = json.NewEncoder(w).Encode(map[string]bool{"available": true})
		case "/subscriptions/4/consume":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["hours"] != 1.5 || body["session_id"] != float64(9) {
				t.Errorf("unexpected consume body: %v", body)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewSubscriptionClient(Config{BaseURL: srv.URL}, zerolog.Nop())

	sub, err := client.Get(context.Background(), 4)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.ID != 4 || sub.RemainingHours == nil || *sub.RemainingHours != 2.5 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	available, err := client.CheckAvailability(context.Background(), 4, 1.5)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if !available {
		t.Fatal("expected availability")
	}

	if err := client.ConsumeHours(context.Background(), 4, 1.5, 9); err != nil {
		t.Fatalf("consume hours: %v", err)
	}

	// A zero debit never hits the network.
	if err := client.ConsumeHours(context.Background(), 4, 0, 9); err != nil {
		t.Fatalf("zero consume: %v", err)
	}
}
