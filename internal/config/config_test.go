package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("LIFECYCLE_INTERNAL_REVIEW_TENANTS", "t-1, t-2,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sweep.InactivityWindow != 120*time.Hour {
		t.Fatalf("expected 5 day window, got %s", cfg.Sweep.InactivityWindow)
	}
	if cfg.Lifecycle.ConflictRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.Lifecycle.ConflictRetries)
	}
	if cfg.Lifecycle.DefaultInitialStatus != "open" {
		t.Fatalf("unexpected initial status %q", cfg.Lifecycle.DefaultInitialStatus)
	}
	tenants := cfg.Lifecycle.InternalReviewTenantSet()
	if _, ok := tenants["t-2"]; !ok || len(tenants) != 2 {
		t.Fatalf("unexpected tenant set %v", tenants)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr %s", cfg.App.Addr())
	}
}

func TestLoadRejectsBadInitialStatus(t *testing.T) {
	t.Setenv("LIFECYCLE_DEFAULT_INITIAL_STATUS", "resolved")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("SWEEP_INACTIVITY_WINDOW", "36h")
	t.Setenv("SWEEP_CONCURRENCY", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sweep.InactivityWindow != 36*time.Hour {
		t.Fatalf("expected 36h, got %s", cfg.Sweep.InactivityWindow)
	}
	if cfg.Sweep.Concurrency != 1 {
		t.Fatalf("expected concurrency clamp to 1, got %d", cfg.Sweep.Concurrency)
	}
}

func TestLoadRejectsBadSchedule(t *testing.T) {
	t.Setenv("SWEEP_SCHEDULE", "every day")
	if _, err := Load(); err == nil {
		t.Fatalf("expected schedule error")
	}
	t.Setenv("SWEEP_ENABLED", "false")
	if _, err := Load(); err != nil {
		t.Fatalf("disabled sweep should not parse schedule: %v", err)
	}
}
