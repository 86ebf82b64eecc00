package tracker

import (
	"context"
	"time"

	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultSnapshotRetentionDays is how long terminal session snapshots are
// kept before the daily sweep prunes them.
const DefaultSnapshotRetentionDays = 7

// Sweeper prunes aged records once a day: notification history past its
// retention window and terminal session snapshots past theirs.
type Sweeper struct {
	store                 storage.Store
	sweepTime             time.Time // only hour and minute are used
	notificationRetention time.Duration
	snapshotRetentionDays int
	logger                zerolog.Logger
	stopChan              chan struct{}
}

// NewSweeper creates a daily maintenance sweeper. sweepTime is "HH:MM".
func NewSweeper(store storage.Store, sweepTime string, notificationRetention time.Duration, snapshotRetentionDays int, logger zerolog.Logger) (*Sweeper, error) {
	parsedTime, err := time.Parse("15:04", sweepTime)
	if err != nil {
		return nil, err
	}

	if snapshotRetentionDays <= 0 {
		snapshotRetentionDays = DefaultSnapshotRetentionDays
	}

	return &Sweeper{
		store:                 store,
		sweepTime:             parsedTime,
		notificationRetention: notificationRetention,
		snapshotRetentionDays: snapshotRetentionDays,
		logger:                logger.With().Str("component", "maintenance-sweeper").Logger(),
		stopChan:              make(chan struct{}),
	}, nil
}

// Start begins the sweeper loop.
func (sw *Sweeper) Start() {
	go sw.run()
	sw.logger.Info().
		Str("sweep_time", sw.sweepTime.Format("15:04")).
		Msg("Daily maintenance sweeper started")
}

// Stop stops the sweeper.
func (sw *Sweeper) Stop() {
	close(sw.stopChan)
	sw.logger.Info().Msg("Daily maintenance sweeper stopped")
}

func (sw *Sweeper) run() {
	for {
		nextSweep := sw.calculateNextSweep()
		waitDuration := time.Until(nextSweep)

		sw.logger.Info().
			Time("next_sweep", nextSweep).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next maintenance sweep")

		select {
		case <-time.After(waitDuration):
			sw.Sweep(context.Background())
		case <-sw.stopChan:
			return
		}
	}
}

func (sw *Sweeper) calculateNextSweep() time.Time {
	now := time.Now()

	todaySweep := time.Date(
		now.Year(), now.Month(), now.Day(),
		sw.sweepTime.Hour(), sw.sweepTime.Minute(), 0, 0,
		now.Location(),
	)

	if now.After(todaySweep) {
		return todaySweep.AddDate(0, 0, 1)
	}
	return todaySweep
}

// Sweep prunes aged records immediately. Errors are logged, never fatal: a
// failed sweep retries at the next scheduled run.
func (sw *Sweeper) Sweep(ctx context.Context) {
	sw.logger.Info().Msg("Performing maintenance sweep")

	notificationCutoff := time.Now().Add(-sw.notificationRetention)
	removed, err := sw.store.Notifications().DeleteBefore(ctx, notificationCutoff)
	if err != nil {
		sw.logger.Error().Err(err).Msg("Failed to prune notification history")
	} else if removed > 0 {
		sw.logger.Info().
			Int("removed", removed).
			Time("cutoff", notificationCutoff).
			Msg("Pruned aged notifications")
	}

	snapshotCutoff := time.Now().AddDate(0, 0, -sw.snapshotRetentionDays)
	removed, err = sw.store.Sessions().DeleteTerminalBefore(ctx, snapshotCutoff)
	if err != nil {
		sw.logger.Error().Err(err).Msg("Failed to prune session snapshots")
	} else if removed > 0 {
		sw.logger.Info().
			Int("removed", removed).
			Time("cutoff", snapshotCutoff).
			Msg("Pruned terminal session snapshots")
	}
}
