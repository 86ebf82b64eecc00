package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/netcafe-labs/postetrack/internal/billing"
	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/rs/zerolog"
)

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeResolver) ResolveCost(_ context.Context, _ int64, elapsedMinutes int, tariffPlanID string, _ int64) (billing.CostResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail {
		return billing.CostResult{}, errors.New("backend unavailable")
	}
	// 6.00 per hour, linear.
	return billing.CostResult{
		Cost:         float64(elapsedMinutes) * 0.1,
		TariffPlanID: tariffPlanID,
	}, nil
}

type captureSink struct {
	mu    sync.Mutex
	ticks []session.TimeInfo
}

func (c *captureSink) OnTick(_ session.Session, info session.TimeInfo) {
	c.mu.Lock()
	c.ticks = append(c.ticks, info)
	c.mu.Unlock()
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ticks)
}

type testEngine struct {
	engine   *Engine
	registry *session.Registry
	clock    *TestClock
	sched    *ManualScheduler
	sink     *captureSink
	resolver *fakeResolver
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	te := &testEngine{
		registry: session.NewRegistry(zerolog.Nop()),
		clock:    &TestClock{CurrentTime: time.Date(2026, 3, 15, 14, 0, 0, 0, time.UTC)},
		sched:    NewManualScheduler(),
		sink:     &captureSink{},
		resolver: &fakeResolver{},
	}
	te.engine = NewEngine(te.registry, te.resolver, te.sink, nil, Config{}, zerolog.Nop())
	te.engine.SetClock(te.clock)
	te.engine.SetScheduler(te.sched)
	return te
}

func (te *testEngine) registerActive(t *testing.T, id int64, plannedMinutes int) {
	t.Helper()

	err := te.registry.Register(session.Session{
		ID:                     id,
		State:                  session.StateActive,
		StationID:              3,
		TariffPlanID:           "standard",
		StartTime:              te.clock.Now(),
		PlannedDurationMinutes: plannedMinutes,
	})
	if err != nil {
		t.Fatalf("register session: %v", err)
	}
}

func TestStartClockRequiresActiveSession(t *testing.T) {
	te := newTestEngine(t)

	if err := te.engine.StartClock(42); !errors.Is(err, session.ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked for unknown session, got %v", err)
	}

	if err := te.registry.Register(session.Session{ID: 1, StationID: 3}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := te.engine.StartClock(1); !errors.Is(err, session.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for STARTING session, got %v", err)
	}
}

func TestStartClockTwiceIsNoOp(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("second start must be a no-op, got %v", err)
	}
	if te.sched.Len() != 1 {
		t.Fatalf("expected exactly one scheduled clock, got %d", te.sched.Len())
	}
}

func TestTickUpdatesRegistry(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.clock.Advance(30 * time.Minute)
	te.sched.Fire()

	s, ok := te.registry.Get(1)
	if !ok {
		t.Fatal("session disappeared from registry")
	}
	if s.ElapsedMinutes != 30 || s.RemainingMinutes != 30 {
		t.Fatalf("expected 30/30 minutes, got %d/%d", s.ElapsedMinutes, s.RemainingMinutes)
	}
	if s.ProgressPercent != 50 {
		t.Fatalf("expected 50%% progress, got %f", s.ProgressPercent)
	}
	if s.IsExpired {
		t.Fatal("session must not be expired at the halfway point")
	}
	if s.EstimatedCost != 3.0 {
		t.Fatalf("expected estimated cost 3.00, got %f", s.EstimatedCost)
	}
	if s.AmountDue != 3.0 {
		t.Fatalf("expected amount due 3.00, got %f", s.AmountDue)
	}
}

func TestMinuteFieldsStayComplementary(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	for i := 0; i < 59; i++ {
		te.clock.Advance(time.Minute + 17*time.Second)
		te.sched.Fire()

		s, _ := te.registry.Get(1)
		if s.IsExpired {
			if s.RemainingMinutes != 0 {
				t.Fatalf("expired session must report 0 remaining, got %d", s.RemainingMinutes)
			}
			continue
		}
		if got := s.ElapsedMinutes + s.RemainingMinutes; got != 60 {
			t.Fatalf("elapsed %d + remaining %d = %d, want 60", s.ElapsedMinutes, s.RemainingMinutes, got)
		}
	}
}

func TestExpiry(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.clock.Advance(61 * time.Minute)
	te.sched.Fire()

	s, _ := te.registry.Get(1)
	if !s.IsExpired {
		t.Fatal("expected session to be expired")
	}
	if s.RemainingMinutes != 0 {
		t.Fatalf("expected 0 remaining, got %d", s.RemainingMinutes)
	}
	if s.ProgressPercent <= 100 {
		t.Fatalf("expected overrun progress above 100%%, got %f", s.ProgressPercent)
	}

	// Expiry never stops the clock: tracking continues until an explicit
	// terminate or stop.
	if !te.engine.Running(1) {
		t.Fatal("expected the clock to keep running after expiry")
	}
}

func TestProgressOverrunCap(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 10)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.clock.Advance(10 * time.Hour)
	te.sched.Fire()

	s, _ := te.registry.Get(1)
	if s.ProgressPercent != ProgressOverrunCap {
		t.Fatalf("expected progress capped at %f, got %f", ProgressOverrunCap, s.ProgressPercent)
	}
}

func TestUnboundedSession(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 0)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.clock.Advance(5 * time.Hour)
	te.sched.Fire()

	s, _ := te.registry.Get(1)
	if s.IsExpired {
		t.Fatal("unbounded session must never expire")
	}
	if s.ElapsedMinutes != 300 {
		t.Fatalf("expected 300 elapsed minutes, got %d", s.ElapsedMinutes)
	}

	for _, info := range te.sink.ticks {
		if !info.Unbounded {
			t.Fatal("expected every tick snapshot to be marked unbounded")
		}
	}
}

func TestPausedTimeDoesNotCount(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	// 15 paused minutes already accumulated.
	_, err := te.registry.Update(1, func(s *session.Session) {
		s.PausedMinutesTotal = 15
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.clock.Advance(45 * time.Minute)
	te.sched.Fire()

	s, _ := te.registry.Get(1)
	if s.ElapsedMinutes != 30 {
		t.Fatalf("expected 30 elapsed minutes with 15 paused, got %d", s.ElapsedMinutes)
	}
}

func TestStopClockIdempotent(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.engine.StopClock(1)
	te.engine.StopClock(1)

	if te.sched.Len() != 0 {
		t.Fatalf("expected no scheduled clocks, got %d", te.sched.Len())
	}

	before := te.sink.count()
	te.clock.Advance(time.Minute)
	te.sched.Fire()
	if te.sink.count() != before {
		t.Fatal("a stopped clock must never tick again")
	}
}

func TestTickStopsOrphanedClock(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.registry.Remove(1)
	te.sched.Fire()

	if te.engine.Running(1) {
		t.Fatal("expected the orphaned clock to be released")
	}
}

func TestResolverFailureKeepsPreviousEstimate(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock: %v", err)
	}

	te.clock.Advance(10 * time.Minute)
	te.sched.Fire()

	s, _ := te.registry.Get(1)
	if s.EstimatedCost != 1.0 {
		t.Fatalf("expected cost 1.00 before failure, got %f", s.EstimatedCost)
	}

	te.resolver.fail = true
	te.clock.Advance(10 * time.Minute)
	te.sched.Fire()

	s, _ = te.registry.Get(1)
	if s.EstimatedCost != 1.0 {
		t.Fatalf("expected the previous estimate to survive the failure, got %f", s.EstimatedCost)
	}
	if s.ElapsedMinutes != 20 {
		t.Fatalf("timing must still advance on resolver failure, got %d elapsed", s.ElapsedMinutes)
	}
}

func TestStopAll(t *testing.T) {
	te := newTestEngine(t)
	te.registerActive(t, 1, 60)
	te.registerActive(t, 2, 30)

	if err := te.engine.StartClock(1); err != nil {
		t.Fatalf("start clock 1: %v", err)
	}
	if err := te.engine.StartClock(2); err != nil {
		t.Fatalf("start clock 2: %v", err)
	}

	te.engine.StopAll()

	if te.engine.Running(1) || te.engine.Running(2) {
		t.Fatal("expected all clocks released")
	}
	if te.sched.Len() != 0 {
		t.Fatalf("expected no scheduled callbacks, got %d", te.sched.Len())
	}
}
