package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Notifications() NotificationStore
	Tariffs() TariffStore
	Sessions() SessionStore
}

// NotificationStore persists the notification history as a single ordered
// blob. The caller decides which records are persistable; the store only
// serializes, loads and prunes.
type NotificationStore interface {
	SaveHistory(ctx context.Context, records []NotificationRecord) error
	LoadHistory(ctx context.Context) ([]NotificationRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// TariffStore manages tariff plan definitions.
type TariffStore interface {
	Get(ctx context.Context, id string) (*TariffPlan, error)
	List(ctx context.Context) ([]TariffPlan, error)
	Upsert(ctx context.Context, plan TariffPlan) error
	Delete(ctx context.Context, id string) error
}

// SessionStore keeps snapshots of tracked sessions so the tracker can
// rebuild its local mirror after a restart.
type SessionStore interface {
	Upsert(ctx context.Context, snapshot SessionSnapshot) error
	Get(ctx context.Context, id int64) (*SessionSnapshot, error)
	List(ctx context.Context) ([]SessionSnapshot, error)
	Delete(ctx context.Context, id int64) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
