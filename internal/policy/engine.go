package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Input is the admission request handed to the policy.
type Input struct {
	StationID              int64 `json:"station_id"`
	ClientID               int64 `json:"client_id"`
	SubscriptionID         int64 `json:"subscription_id"`
	PlannedDurationMinutes int   `json:"planned_duration_minutes"`
	Time                   Time  `json:"time"`
}

// Time is the local time the admission request was made.
type Time struct {
	DayOfWeek int `json:"day_of_week"`
	Hour      int `json:"hour"`
	Minute    int `json:"minute"`
}

// TimeInput builds the policy time view from an instant.
func TimeInput(t time.Time) Time {
	return Time{
		DayOfWeek: int(t.Weekday()),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
	}
}

// Decision is the policy's verdict on a session start.
type Decision struct {
	Allow      bool   `json:"allow"`
	Reason     string `json:"reason"`
	MaxMinutes int    `json:"max_minutes"`
}

// Config holds admission policy configuration.
type Config struct {
	Enabled   bool
	PolicyDir string
}

// Engine wraps the OPA rego engine for session admission decisions. A
// disabled engine admits everything.
type Engine struct {
	enabled   bool
	policyDir string
	logger    zerolog.Logger

	query   rego.PreparedEvalQuery
	modules map[string]*ast.Module
	mu      sync.RWMutex
}

// NewEngine creates an admission engine, loading and compiling every .rego
// file in the policy directory.
func NewEngine(cfg Config, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		enabled:   cfg.Enabled,
		policyDir: cfg.PolicyDir,
		logger:    logger.With().Str("component", "admission-policy").Logger(),
		modules:   make(map[string]*ast.Module),
	}

	if !cfg.Enabled {
		e.logger.Info().Msg("Admission policy disabled, all sessions admitted")
		return e, nil
	}

	if err := e.loadPolicies(); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	if err := e.prepareQuery(); err != nil {
		return nil, fmt.Errorf("failed to prepare admission query: %w", err)
	}

	e.logger.Info().Str("policy_dir", cfg.PolicyDir).Msg("Admission policy engine initialized")
	return e, nil
}

// loadPolicies loads all .rego files from the policy directory
func (e *Engine) loadPolicies() error {
	files, err := filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
	if err != nil {
		return fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no policy files found in %s", e.policyDir)
	}

	e.logger.Info().Int("count", len(files)).Msg("Loading policy files")

	modules := make(map[string]*ast.Module, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}

		modules[file] = module
		e.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}

	e.mu.Lock()
	e.modules = modules
	e.mu.Unlock()
	return nil
}

func (e *Engine) prepareQuery() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opts := make([]func(*rego.Rego), 0, len(e.modules)+1)
	opts = append(opts, rego.Query("data.postetrack.admission.decision"))
	for _, module := range e.modules {
		opts = append(opts, rego.Module(module.Package.Path.String(), module.String()))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return err
	}

	e.query = query
	return nil
}

// Evaluate decides whether a session may start. A disabled engine always
// allows.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Decision, error) {
	if !e.enabled {
		return &Decision{Allow: true}, nil
	}

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	startTime := time.Now()
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("admission query evaluation failed: %w", err)
	}
	e.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Admission query evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, fmt.Errorf("no results from admission query")
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal admission decision: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(resultBytes, &decision); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admission decision: %w", err)
	}

	return &decision, nil
}

// Reload reloads all policies from disk and recompiles the query.
func (e *Engine) Reload() error {
	if !e.enabled {
		return nil
	}

	e.logger.Info().Msg("Reloading admission policies")

	if err := e.loadPolicies(); err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}
	if err := e.prepareQuery(); err != nil {
		return fmt.Errorf("failed to prepare admission query: %w", err)
	}
	return nil
}
