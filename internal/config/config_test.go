package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.WorkerPort != 8090 {
		t.Errorf("WorkerPort = %d, want 8090", cfg.WorkerPort)
	}
	if cfg.CheckInterval != 30*time.Minute {
		t.Errorf("CheckInterval = %v, want 30m", cfg.CheckInterval)
	}
	if cfg.EmailDeliveryInterval != 5*time.Minute {
		t.Errorf("EmailDeliveryInterval = %v, want 5m", cfg.EmailDeliveryInterval)
	}
	if cfg.MinCheckInterval != 30*time.Minute {
		t.Errorf("MinCheckInterval = %v, want 30m", cfg.MinCheckInterval)
	}
	if cfg.MaxProductsPerRun != 50 {
		t.Errorf("MaxProductsPerRun = %d, want 50", cfg.MaxProductsPerRun)
	}
	if cfg.CheckLockTimeout != 300*time.Second {
		t.Errorf("CheckLockTimeout = %v, want 300s", cfg.CheckLockTimeout)
	}
	if cfg.TrackingConcurrency != 5 {
		t.Errorf("TrackingConcurrency = %d, want 5", cfg.TrackingConcurrency)
	}
	if !cfg.EnableCheckScheduler {
		t.Error("EnableCheckScheduler should default to true")
	}
	if cfg.DisableRenderedFetch {
		t.Error("DisableRenderedFetch should default to false")
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Errorf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHECK_INTERVAL_MINUTES", "10")
	t.Setenv("MIN_CHECK_INTERVAL_MINUTES", "7")
	t.Setenv("MAX_PRODUCTS_PER_RUN", "5")
	t.Setenv("DISABLE_RENDERED_FETCH", "true")
	t.Setenv("WORKER_PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CheckInterval != 10*time.Minute {
		t.Errorf("CheckInterval = %v, want 10m", cfg.CheckInterval)
	}
	if cfg.MinCheckInterval != 7*time.Minute {
		t.Errorf("MinCheckInterval = %v, want 7m", cfg.MinCheckInterval)
	}
	if cfg.MaxProductsPerRun != 5 {
		t.Errorf("MaxProductsPerRun = %d, want 5", cfg.MaxProductsPerRun)
	}
	if !cfg.DisableRenderedFetch {
		t.Error("DisableRenderedFetch should be true")
	}
	if cfg.WorkerPort != 9191 {
		t.Errorf("WorkerPort = %d, want 9191", cfg.WorkerPort)
	}
}

func TestMasterSwitchDisablesAllLoops(t *testing.T) {
	t.Setenv("ENABLE_SCHEDULER", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EnableCheckScheduler || cfg.EnableEmailScheduler || cfg.EnableTrackingScheduler || cfg.EnableRetentionSweep {
		t.Error("all scheduler loops should be disabled when ENABLE_SCHEDULER=false")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_PRODUCTS_PER_RUN", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for MAX_PRODUCTS_PER_RUN=0")
	}
}
