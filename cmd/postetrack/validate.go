package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/netcafe-labs/postetrack/internal/config"
	"github.com/spf13/cobra"
)

var validateDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the PosteTrack configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump the effective configuration")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		return err
	}

	color.New(color.FgGreen).Printf("Configuration is valid: %s\n", configPath)

	if validateDump {
		fmt.Println()
		fmt.Printf("server.metrics_port:               %d\n", cfg.Server.MetricsPort)
		fmt.Printf("server.bind_address:               %s\n", cfg.Server.BindAddress)
		fmt.Printf("api.session_base_url:              %s\n", cfg.API.SessionBaseURL)
		fmt.Printf("api.subscription_base_url:         %s\n", cfg.API.SubscriptionBaseURL)
		fmt.Printf("api.timeout:                       %s\n", cfg.API.Timeout)
		fmt.Printf("api.retry_attempts:                %d\n", cfg.API.RetryAttempts)
		fmt.Printf("storage.type:                      %s\n", cfg.Storage.Type)
		if cfg.Storage.Type == "redis" {
			fmt.Printf("storage.redis.host:                %s\n", cfg.Storage.Redis.Host)
			fmt.Printf("storage.redis.port:                %d\n", cfg.Storage.Redis.Port)
		} else {
			fmt.Printf("storage.path:                      %s\n", cfg.Storage.Path)
		}
		fmt.Printf("logging.level:                     %s\n", cfg.Logging.Level)
		fmt.Printf("logging.format:                    %s\n", cfg.Logging.Format)
		fmt.Printf("tracking.tick_interval:            %s\n", cfg.Tracking.TickInterval)
		fmt.Printf("notifications.warn_threshold:      %s\n", cfg.Notifications.WarnThreshold)
		fmt.Printf("notifications.critical_threshold:  %s\n", cfg.Notifications.CriticalThreshold)
		fmt.Printf("notifications.max_history:         %d\n", cfg.Notifications.MaxHistory)
		fmt.Printf("notifications.retention:           %s\n", cfg.Notifications.Retention)
		fmt.Printf("billing.cache_size:                %d\n", cfg.Billing.CacheSize)
		fmt.Printf("billing.cache_ttl:                 %s\n", cfg.Billing.CacheTTL)
		fmt.Printf("policy.enabled:                    %t\n", cfg.Policy.Enabled)
		fmt.Printf("policy.policy_dir:                 %s\n", cfg.Policy.PolicyDir)
		fmt.Printf("maintenance.daily_sweep_time:      %s\n", cfg.Maintenance.DailySweepTime)
		fmt.Printf("maintenance.snapshot_retention_days: %d\n", cfg.Maintenance.SnapshotRetentionDays)
	}

	return nil
}
