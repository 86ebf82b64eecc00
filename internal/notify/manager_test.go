package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/rs/zerolog"
)

func newTestManager() (*Manager, *Store) {
	store := newMemoryStore()
	return NewManager(store, ManagerConfig{}, zerolog.Nop()), store
}

func boundedSession(id, stationID int64, minutes int) session.Session {
	return session.Session{
		ID:                     id,
		StationID:              stationID,
		State:                  session.StateActive,
		PlannedDurationMinutes: minutes,
	}
}

func tickInfo(planned time.Duration, elapsed time.Duration) session.TimeInfo {
	remaining := planned - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return session.TimeInfo{
		Elapsed:          elapsed,
		Remaining:        remaining,
		ElapsedMinutes:   int(elapsed.Minutes()),
		RemainingMinutes: int(remaining.Minutes()),
		IsExpired:        elapsed >= planned,
	}
}

func sessionMessages(store *Store) []string {
	var out []string
	for _, n := range store.List() {
		if n.Category == "session" {
			out = append(out, n.Message)
		}
	}
	return out
}

func TestThresholdsFireOncePerCrossing(t *testing.T) {
	mgr, store := newTestManager()
	s := boundedSession(1, 7, 10)
	planned := 10 * time.Minute

	// One tick per second from start through one minute past expiry.
	for sec := 0; sec <= 11*60; sec++ {
		mgr.OnTick(s, tickInfo(planned, time.Duration(sec)*time.Second))
	}

	msgs := sessionMessages(store)
	if len(msgs) != 3 {
		t.Fatalf("expected exactly 3 alerts, got %d: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "5 minutes") {
		t.Fatalf("expected first alert to mention 5 minutes, got %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "1 minute") {
		t.Fatalf("expected second alert to mention 1 minute, got %q", msgs[1])
	}
	if !strings.Contains(msgs[2], "expired") {
		t.Fatalf("expected third alert to mention expiry, got %q", msgs[2])
	}
}

func TestSixtyMinuteSession(t *testing.T) {
	mgr, store := newTestManager()
	s := boundedSession(2, 3, 60)
	planned := 60 * time.Minute

	mgr.OnTick(s, tickInfo(planned, 56*time.Minute))
	msgs := sessionMessages(store)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "5 minutes") {
		t.Fatalf("expected one 5-minute warning at 56', got %v", msgs)
	}

	mgr.OnTick(s, tickInfo(planned, 59*time.Minute))
	msgs = sessionMessages(store)
	if len(msgs) != 2 || !strings.Contains(msgs[1], "1 minute") {
		t.Fatalf("expected the 1-minute alert at 59', got %v", msgs)
	}

	mgr.OnTick(s, tickInfo(planned, 61*time.Minute))
	msgs = sessionMessages(store)
	if len(msgs) != 3 || !strings.Contains(msgs[2], "expired") {
		t.Fatalf("expected the expiry alert at 61', got %v", msgs)
	}

	// Later ticks past expiry stay quiet.
	mgr.OnTick(s, tickInfo(planned, 62*time.Minute))
	if got := len(sessionMessages(store)); got != 3 {
		t.Fatalf("expected no further alerts, got %d", got)
	}
}

func TestExtensionReArmsWarning(t *testing.T) {
	mgr, store := newTestManager()
	s := boundedSession(3, 12, 60)
	planned := 60 * time.Minute

	mgr.OnTick(s, tickInfo(planned, 56*time.Minute))
	if got := len(sessionMessages(store)); got != 1 {
		t.Fatalf("expected the first warning, got %d alerts", got)
	}

	// 30-minute extension pushes remaining back above both thresholds.
	planned = 90 * time.Minute
	mgr.ResetThresholds(s.ID, planned-56*time.Minute)

	mgr.OnTick(s, tickInfo(planned, 60*time.Minute))
	if got := len(sessionMessages(store)); got != 1 {
		t.Fatalf("expected no alert with 30 minutes left, got %d", got)
	}

	mgr.OnTick(s, tickInfo(planned, 86*time.Minute))
	msgs := sessionMessages(store)
	if len(msgs) != 2 || !strings.Contains(msgs[1], "5 minutes") {
		t.Fatalf("expected the warning to fire again after extension, got %v", msgs)
	}
}

func TestLateRegistrationSkipsStraightToExpiry(t *testing.T) {
	mgr, store := newTestManager()
	s := boundedSession(4, 5, 30)

	// First observed tick is already past the planned duration.
	mgr.OnTick(s, tickInfo(30*time.Minute, 31*time.Minute))

	msgs := sessionMessages(store)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "expired") {
		t.Fatalf("expected only the expiry alert, got %v", msgs)
	}
}

func TestUnboundedSessionNeverAlerts(t *testing.T) {
	mgr, store := newTestManager()
	s := boundedSession(5, 9, 0)

	mgr.OnTick(s, session.TimeInfo{Elapsed: 5 * time.Hour, Unbounded: true})

	if got := len(store.List()); got != 0 {
		t.Fatalf("expected no alerts for an unbounded session, got %d", got)
	}
}

func TestStopTrackingClearsFlags(t *testing.T) {
	mgr, store := newTestManager()
	s := boundedSession(6, 2, 10)
	planned := 10 * time.Minute

	mgr.OnTick(s, tickInfo(planned, 6*time.Minute))
	mgr.StopTracking(s.ID)

	// A new session reusing the id starts with fresh flags.
	mgr.OnTick(s, tickInfo(planned, 6*time.Minute))

	if got := len(sessionMessages(store)); got != 2 {
		t.Fatalf("expected the warning to fire again after StopTracking, got %d alerts", got)
	}
}

func TestExpiryAlertIsSticky(t *testing.T) {
	mgr, store := newTestManager()
	s := boundedSession(7, 4, 10)

	mgr.OnTick(s, tickInfo(10*time.Minute, 11*time.Minute))

	msgs := store.List()
	if len(msgs) != 1 {
		t.Fatalf("expected one alert, got %d", len(msgs))
	}
	if msgs[0].DurationMs != 0 {
		t.Fatalf("expected the expiry alert to stay until dismissed, got duration %d", msgs[0].DurationMs)
	}
	if msgs[0].Priority != PriorityCritical {
		t.Fatalf("expected critical priority, got %s", msgs[0].Priority)
	}
}
