// Package consistency scans stored appointments for overlaps that slipped
// past the booking guard. It only reports; nothing is repaired.
package consistency

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

const DefaultLockKey int64 = 7301002

type Config struct {
	Interval time.Duration
	// LockKey is the Postgres advisory lock that elects the single running instance.
	LockKey int64
	// RetryLeader is how long a non-leader waits before trying the lock again.
	RetryLeader time.Duration
}

type Incident struct {
	TenantID model.TenantID
	storage.Overlap
}

type Checker struct {
	store  storage.Store
	logger *slog.Logger
	cfg    Config
}

func NewChecker(store storage.Store, logger *slog.Logger, cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.LockKey == 0 {
		cfg.LockKey = DefaultLockKey
	}
	if cfg.RetryLeader <= 0 {
		cfg.RetryLeader = 30 * time.Second
	}
	return &Checker{store: store, logger: logger, cfg: cfg}
}

// Run blocks until ctx is done. Only the instance holding the advisory lock
// scans; the others keep retrying the lock.
func (c *Checker) Run(ctx context.Context) error {
	for {
		ran, err := c.store.RunExclusive(ctx, c.cfg.LockKey, c.lead)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err != nil:
			c.logger.Error("consistency check: leader loop failed", "err", err)
		case !ran:
			c.logger.Debug("consistency check: lock held by another instance", "lock_key", c.cfg.LockKey)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.RetryLeader):
		}
	}
}

func (c *Checker) lead(ctx context.Context) error {
	c.logger.Info("consistency check: lock acquired", "lock_key", c.cfg.LockKey)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := c.CheckOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("consistency check failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CheckOnce scans every tenant and logs each overlap at ERROR.
func (c *Checker) CheckOnce(ctx context.Context) ([]Incident, error) {
	tenants, err := c.store.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	var incidents []Incident
	for _, id := range tenants {
		overlaps, err := c.store.Tenant(id).Overlaps(ctx)
		if err != nil {
			return incidents, err
		}
		for _, o := range overlaps {
			c.logger.Error("data integrity incident",
				"business_id", id,
				"staff_id", o.StaffID,
				"first_appointment_id", o.First.ID,
				"first_start", o.First.Start,
				"first_end", o.First.End,
				"second_appointment_id", o.Second.ID,
				"second_start", o.Second.Start,
				"second_end", o.Second.End,
			)
			incidents = append(incidents, Incident{TenantID: id, Overlap: o})
		}
	}
	if len(incidents) == 0 {
		c.logger.Debug("consistency check clean", "tenants", len(tenants))
	}
	return incidents, nil
}
