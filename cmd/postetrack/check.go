package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/netcafe-labs/postetrack/internal/api"
	"github.com/netcafe-labs/postetrack/internal/billing"
	"github.com/netcafe-labs/postetrack/internal/config"
	"github.com/netcafe-labs/postetrack/internal/policy"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkStationID      int64
	checkMinutes        int
	checkPlanID         string
	checkSubscriptionID int64
	checkClientID       int64
	checkDay            string
	checkTime           string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check billing and admission decisions interactively",
	Long:  `Check what PosteTrack would charge for a session, or whether the admission policy would let it start.`,
}

var checkCostCmd = &cobra.Command{
	Use:   "cost [flags]",
	Short: "Check the cost of a session duration",
	Long:  `Resolve the cost of a given number of minutes against a stored tariff plan, optionally applying a subscription benefit.`,
	Example: `  postetrack -c config.yaml check cost --station 3 --minutes 90 --plan standard
  postetrack check cost --station 3 --minutes 90 --plan standard --subscription 12`,
	RunE: runCheckCost,
}

var checkAdmissionCmd = &cobra.Command{
	Use:   "admission [flags]",
	Short: "Check the admission policy decision for a session start",
	Long:  `Evaluate the OPA admission policy for a hypothetical session start request.`,
	Example: `  postetrack check admission --station 3 --minutes 120
  postetrack check admission --station 3 --minutes 0 --client 7 --time 22:30`,
	RunE: runCheckAdmission,
}

func init() {
	// Cost check flags
	checkCostCmd.Flags().Int64Var(&checkStationID, "station", 0, "Station id (required)")
	checkCostCmd.Flags().IntVar(&checkMinutes, "minutes", 0, "Elapsed minutes to price (required)")
	checkCostCmd.Flags().StringVar(&checkPlanID, "plan", "", "Tariff plan id (required)")
	checkCostCmd.Flags().Int64Var(&checkSubscriptionID, "subscription", 0, "Subscription id (optional)")
	checkCostCmd.MarkFlagRequired("station")
	checkCostCmd.MarkFlagRequired("minutes")
	checkCostCmd.MarkFlagRequired("plan")

	// Admission check flags
	checkAdmissionCmd.Flags().Int64Var(&checkStationID, "station", 0, "Station id (required)")
	checkAdmissionCmd.Flags().IntVar(&checkMinutes, "minutes", 0, "Planned duration in minutes (0 = unbounded)")
	checkAdmissionCmd.Flags().Int64Var(&checkClientID, "client", 0, "Client id (optional)")
	checkAdmissionCmd.Flags().Int64Var(&checkSubscriptionID, "subscription", 0, "Subscription id (optional)")
	checkAdmissionCmd.Flags().StringVar(&checkDay, "day", "", "Day of week (monday, tuesday, etc.) - defaults to current day")
	checkAdmissionCmd.Flags().StringVar(&checkTime, "time", "", "Time of day (HH:MM) - defaults to current time")
	checkAdmissionCmd.MarkFlagRequired("station")

	// Add subcommands
	checkCmd.AddCommand(checkCostCmd)
	checkCmd.AddCommand(checkAdmissionCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckCost(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	logger := zerolog.Nop()

	// Subscription benefits come from the backend; without a subscription
	// flag no network call is made.
	var source billing.SubscriptionSource
	if checkSubscriptionID > 0 {
		source = api.NewSubscriptionClient(api.Config{
			BaseURL:       cfg.API.SubscriptionBaseURL,
			Token:         cfg.API.Token,
			Timeout:       parseDuration(cfg.API.Timeout, api.DefaultTimeout),
			RetryAttempts: cfg.API.RetryAttempts,
		}, logger)
	}

	resolver := billing.NewResolver(store.Tariffs(), source, billing.Config{}, logger)

	result, err := resolver.ResolveCost(context.Background(), checkStationID, checkMinutes, checkPlanID, checkSubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to resolve cost: %w", err)
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)

	bold.Printf("Cost for %d minutes on station %d (plan %s)\n", checkMinutes, checkStationID, checkPlanID)
	fmt.Printf("  Cost:    %.2f\n", result.Cost)
	if result.SubscriptionApplied {
		green.Printf("  Subscription applied, economy: %.2f\n", result.Economy)
	} else if checkSubscriptionID > 0 {
		fmt.Println("  Subscription not applicable, normal tariff billed")
	}

	return nil
}

func runCheckAdmission(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	engine, err := policy.NewEngine(policy.Config{
		Enabled:   cfg.Policy.Enabled,
		PolicyDir: cfg.Policy.PolicyDir,
	}, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("failed to initialize admission policy: %w", err)
	}

	when, err := checkInstant()
	if err != nil {
		return err
	}

	decision, err := engine.Evaluate(context.Background(), policy.Input{
		StationID:              checkStationID,
		ClientID:               checkClientID,
		SubscriptionID:         checkSubscriptionID,
		PlannedDurationMinutes: checkMinutes,
		Time:                   policy.TimeInput(when),
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate admission: %w", err)
	}

	if decision.Allow {
		color.New(color.FgGreen, color.Bold).Printf("ALLOW")
		fmt.Printf("  station %d, %d minutes\n", checkStationID, checkMinutes)
	} else {
		color.New(color.FgRed, color.Bold).Printf("DENY")
		fmt.Printf("   station %d, %d minutes: %s\n", checkStationID, checkMinutes, decision.Reason)
	}
	if decision.MaxMinutes > 0 {
		fmt.Printf("  Maximum session length: %d minutes\n", decision.MaxMinutes)
	}
	if !cfg.Policy.Enabled {
		fmt.Fprintln(os.Stderr, "note: admission policy is disabled, every session is admitted")
	}

	return nil
}

// checkInstant builds the evaluation instant from the --day and --time
// flags, defaulting to now.
func checkInstant() (time.Time, error) {
	now := time.Now()

	if checkTime != "" {
		parsed, err := time.Parse("15:04", checkTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --time value %q, expected HH:MM", checkTime)
		}
		now = time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	}

	if checkDay != "" {
		days := map[string]time.Weekday{
			"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
			"wednesday": time.Wednesday, "thursday": time.Thursday,
			"friday": time.Friday, "saturday": time.Saturday,
		}
		target, ok := days[strings.ToLower(checkDay)]
		if !ok {
			return time.Time{}, fmt.Errorf("invalid --day value %q", checkDay)
		}
		for now.Weekday() != target {
			now = now.AddDate(0, 0, 1)
		}
	}

	return now, nil
}
