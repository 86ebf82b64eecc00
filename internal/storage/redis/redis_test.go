package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/netcafe-labs/postetrack/internal/config"
	"github.com/netcafe-labs/postetrack/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Host:         mr.Addr(), // full "host:port" address
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("open redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestNotificationHistoryRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	notifications := store.Notifications()
	records := []storage.NotificationRecord{
		{ID: "n-1", Type: "WARNING", Priority: "high", Category: "session", Timestamp: time.Now()},
		{ID: "n-2", Type: "ERROR", Priority: "critical", Category: "session", Timestamp: time.Now()},
	}

	if err := notifications.SaveHistory(ctx, records); err != nil {
		t.Fatalf("save history: %v", err)
	}

	loaded, err := notifications.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}

	deleted, err := notifications.DeleteBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted records, got %d", deleted)
	}
}

func TestNotificationHistoryEmpty(t *testing.T) {
	store := setupTestStore(t)

	loaded, err := store.Notifications().LoadHistory(context.Background())
	if err != nil {
		t.Fatalf("load empty history: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty history, got %d records", len(loaded))
	}
}

func TestTariffStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tariffs := store.Tariffs()
	plan := storage.TariffPlan{
		ID:   "tiered-evening",
		Name: "Evening Tiered",
		Kind: storage.TariffTiered,
		Tiers: []storage.TariffTier{
			{FromMinute: 0, ToMinute: 60, RatePerHour: 4},
			{FromMinute: 60, ToMinute: 0, RatePerHour: 2.5},
		},
	}

	if err := tariffs.Upsert(ctx, plan); err != nil {
		t.Fatalf("upsert tariff: %v", err)
	}

	got, err := tariffs.Get(ctx, "tiered-evening")
	if err != nil {
		t.Fatalf("get tariff: %v", err)
	}
	if len(got.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(got.Tiers))
	}

	plans, err := tariffs.List(ctx)
	if err != nil {
		t.Fatalf("list tariffs: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}

	if err := tariffs.Delete(ctx, "tiered-evening"); err != nil {
		t.Fatalf("delete tariff: %v", err)
	}
	if _, err := tariffs.Get(ctx, "tiered-evening"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessions := store.Sessions()
	now := time.Now()

	if err := sessions.Upsert(ctx, storage.SessionSnapshot{
		ID: 7, State: "ACTIVE", StationID: 2, TariffPlanID: "hourly-standard",
		StartTime: now, PlannedDurationMinutes: 60, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("upsert snapshot: %v", err)
	}
	if err := sessions.Upsert(ctx, storage.SessionSnapshot{
		ID: 8, State: "CANCELLED", StationID: 3, UpdatedAt: now.Add(-72 * time.Hour),
	}); err != nil {
		t.Fatalf("upsert snapshot: %v", err)
	}

	got, err := sessions.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if got.PlannedDurationMinutes != 60 {
		t.Fatalf("expected planned 60, got %d", got.PlannedDurationMinutes)
	}

	deleted, err := sessions.DeleteTerminalBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete terminal before: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted snapshot, got %d", deleted)
	}

	remaining, err := sessions.List(ctx)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != 7 {
		t.Fatalf("expected only session 7 to remain, got %v", remaining)
	}
}
