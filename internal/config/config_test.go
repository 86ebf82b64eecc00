package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  path: "+filepath.Join(dir, "data.bolt")+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.MetricsPort != 9090 {
		t.Errorf("expected default metrics port 9090, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Storage.Type != "bolt" {
		t.Errorf("expected default storage type bolt, got %s", cfg.Storage.Type)
	}
	if cfg.Notifications.WarnThreshold != "5m" {
		t.Errorf("expected default warn threshold 5m, got %s", cfg.Notifications.WarnThreshold)
	}
	if cfg.Tracking.TickInterval != "1s" {
		t.Errorf("expected default tick interval 1s, got %s", cfg.Tracking.TickInterval)
	}
	if cfg.Maintenance.DailySweepTime != "04:00" {
		t.Errorf("expected default sweep time 04:00, got %s", cfg.Maintenance.DailySweepTime)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  metrics_port: 9999
storage:
  type: redis
  redis:
    host: redis.internal
    port: 6380
notifications:
  warn_threshold: 10m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.MetricsPort != 9999 {
		t.Errorf("expected metrics port 9999, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Storage.Type != "redis" || cfg.Storage.Redis.Host != "redis.internal" || cfg.Storage.Redis.Port != 6380 {
		t.Errorf("unexpected redis config: %+v", cfg.Storage)
	}
	if cfg.Notifications.WarnThreshold != "10m" {
		t.Errorf("expected warn threshold 10m, got %s", cfg.Notifications.WarnThreshold)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bad storage type",
			content: "storage:\n  type: sqlite\n",
			want:    "unknown storage type",
		},
		{
			name:    "bad tick interval",
			content: "tracking:\n  tick_interval: soon\n",
			want:    "invalid tick interval",
		},
		{
			name:    "bad sweep time",
			content: "maintenance:\n  daily_sweep_time: midnight\n",
			want:    "invalid daily sweep time",
		},
		{
			name:    "policy without dir",
			content: "policy:\n  enabled: true\n  policy_dir: \"\"\n",
			want:    "policy directory is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			content := "storage:\n  path: " + filepath.Join(dir, "data.bolt") + "\n" + tc.content
			if strings.HasPrefix(tc.content, "storage:") {
				content = tc.content
			}

			_, err := Load(writeConfig(t, content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseClockTime(t *testing.T) {
	d, err := ParseClockTime("04:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Hours() != 4.5 {
		t.Fatalf("expected 4h30m, got %s", d)
	}

	if _, err := ParseClockTime("25:00"); err == nil {
		t.Fatal("expected an error for an invalid hour")
	}
}
