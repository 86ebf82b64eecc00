package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netcafe-labs/postetrack/internal/api"
	"github.com/netcafe-labs/postetrack/internal/billing"
	"github.com/netcafe-labs/postetrack/internal/config"
	"github.com/netcafe-labs/postetrack/internal/events"
	"github.com/netcafe-labs/postetrack/internal/metrics"
	"github.com/netcafe-labs/postetrack/internal/notify"
	"github.com/netcafe-labs/postetrack/internal/policy"
	"github.com/netcafe-labs/postetrack/internal/session"
	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/netcafe-labs/postetrack/internal/storage/bolt"
	"github.com/netcafe-labs/postetrack/internal/storage/redis"
	"github.com/netcafe-labs/postetrack/internal/systemd"
	"github.com/netcafe-labs/postetrack/internal/timer"
	"github.com/netcafe-labs/postetrack/internal/tracker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the PosteTrack tracking service",
	Long:  `Start the PosteTrack service: session tracking, per-session clocks, billing recomputation, threshold alerts and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting PosteTrack")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	ctx := context.Background()
	bus := events.NewBus(logger)

	// Notification store and manager
	alerts := notify.NewStore(store.Notifications(), bus, notify.StoreConfig{
		MaxHistory: cfg.Notifications.MaxHistory,
		Retention:  parseDuration(cfg.Notifications.Retention, notify.DefaultRetention),
	}, logger)
	if err := alerts.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to load notification history")
	}

	notifier := notify.NewManager(alerts, notify.ManagerConfig{
		WarnThreshold:     parseDuration(cfg.Notifications.WarnThreshold, notify.DefaultWarnThreshold),
		CriticalThreshold: parseDuration(cfg.Notifications.CriticalThreshold, notify.DefaultCriticalThreshold),
		ToastDurationMs:   cfg.Notifications.ToastDurationMs,
	}, logger)

	// Backend API clients
	apiTimeout := parseDuration(cfg.API.Timeout, api.DefaultTimeout)
	sessionClient := api.NewSessionClient(api.Config{
		BaseURL:       cfg.API.SessionBaseURL,
		Token:         cfg.API.Token,
		Timeout:       apiTimeout,
		RetryAttempts: cfg.API.RetryAttempts,
	}, logger)
	subscriptionClient := api.NewSubscriptionClient(api.Config{
		BaseURL:       cfg.API.SubscriptionBaseURL,
		Token:         cfg.API.Token,
		Timeout:       apiTimeout,
		RetryAttempts: cfg.API.RetryAttempts,
	}, logger)

	// Cost resolver
	resolver := billing.NewResolver(store.Tariffs(), subscriptionClient, billing.Config{
		CacheSize: cfg.Billing.CacheSize,
		CacheTTL:  parseDuration(cfg.Billing.CacheTTL, billing.DefaultCacheTTL),
	}, logger)

	// Registry and timer engine
	registry := session.NewRegistry(logger)
	engine := timer.NewEngine(registry, resolver, notifier, bus, timer.Config{
		TickInterval: parseDuration(cfg.Tracking.TickInterval, timer.DefaultTickInterval),
	}, logger)

	// Admission policy
	admission, err := policy.NewEngine(policy.Config{
		Enabled:   cfg.Policy.Enabled,
		PolicyDir: cfg.Policy.PolicyDir,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize admission policy: %w", err)
	}

	// Tracker
	track := tracker.New(registry, engine, resolver, notifier, alerts,
		sessionClient, subscriptionClient, store.Sessions(), admission, bus, logger)

	// Daily maintenance sweep
	sweeper, err := tracker.NewSweeper(store, cfg.Maintenance.DailySweepTime,
		parseDuration(cfg.Notifications.Retention, notify.DefaultRetention),
		cfg.Maintenance.SnapshotRetentionDays, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize maintenance sweeper: %w", err)
	}
	sweeper.Start()

	// Metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().Str("addr", metricsAddr).Msg("Metrics Server started")

	// Rebuild tracking from the backend (or snapshots when it is down)
	if err := track.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to recover session tracking")
	}

	logger.Info().Msg("PosteTrack startup complete")
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	// Notify systemd that we're ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, reloading admission policies...")
			if err := admission.Reload(); err != nil {
				logger.Error().Err(err).Msg("Failed to reload policies")
			} else {
				logger.Info().Msg("Policies reloaded successfully")
			}
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		}

		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop components
	sweeper.Stop()
	engine.StopAll()

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("PosteTrack stopped")
	return nil
}

// openStorage opens the configured storage backend
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "bolt", "":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
