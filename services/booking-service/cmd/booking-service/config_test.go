package main

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func setRequired(t *testing.T) {
	t.Setenv("DOTENV_FILE", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/booking")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.initialStatus() != model.StatusConfirmed {
		t.Fatalf("expected confirmed by default, got %s", cfg.initialStatus())
	}
	if cfg.IdempotencyTTL != 24*time.Hour || cfg.CancellationCutoff != 24*time.Hour {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
}

func TestLoadConfigInitialStatus(t *testing.T) {
	setRequired(t)
	t.Setenv("BOOKING_INITIAL_STATUS", "Pending")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.initialStatus() != model.StatusPending {
		t.Fatalf("expected pending, got %s", cfg.initialStatus())
	}

	t.Setenv("BOOKING_INITIAL_STATUS", "completed")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected completed to be rejected")
	}
}
