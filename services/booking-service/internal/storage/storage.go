package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrTransient marks a failure that may succeed if the caller retries.
	ErrTransient = errors.New("storage: transient failure")
)

// IsTransient covers both wrapped ErrTransient and raw Postgres/network errors.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || db.IsTransient(err)
}

// Store hands out tenant-scoped handles. Nothing that reads or writes tenant
// data is reachable without one.
type Store interface {
	Tenant(id model.TenantID) Tenant
	// Tenants lists every tenant id, for background jobs that visit each one.
	Tenants(ctx context.Context) ([]model.TenantID, error)
	// RecordProviderEvent returns false when the event was already recorded.
	RecordProviderEvent(ctx context.Context, provider, eventID, eventType string) (bool, error)
	// RunExclusive runs fn only if this process wins the named lock; ran
	// reports whether fn was invoked.
	RunExclusive(ctx context.Context, lockKey int64, fn func(context.Context) error) (ran bool, err error)
	Close()
}

type Tenant interface {
	ID() model.TenantID

	Service(ctx context.Context, id string) (model.Service, error)
	Location(ctx context.Context, id string) (model.Location, error)
	Staff(ctx context.Context, id string) (model.Staff, error)
	// QualifiedStaff lists active staff offering serviceID at locationID,
	// least recently booked first (never booked sorts first), ties by id.
	QualifiedStaff(ctx context.Context, serviceID, locationID string) ([]model.Staff, error)
	Windows(ctx context.Context, staffID, locationID string) ([]model.AvailabilityWindow, error)
	// Busy returns active appointment intervals of staffID intersecting iv.
	Busy(ctx context.Context, staffID string, iv model.Interval) ([]model.Interval, error)

	// Book is the atomic check-then-insert. See BookParams.
	Book(ctx context.Context, p BookParams) (BookOutcome, error)
	// IdempotentAppointment returns the appointment a live key already produced.
	IdempotentAppointment(ctx context.Context, key string, ttl time.Duration) (model.Appointment, bool, error)

	Appointment(ctx context.Context, id string) (model.Appointment, error)
	Appointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error)
	// UpdateAppointment locks the row, lets fn mutate it and persists the
	// status, cancellation and payment fields. An error from fn aborts.
	UpdateAppointment(ctx context.Context, id string, fn func(*model.Appointment) error) (model.Appointment, error)

	// Overlaps reports pairs of active appointments that intersect.
	Overlaps(ctx context.Context) ([]Overlap, error)
}

// BookParams describes one attempt. Within a single atomic unit the store
// serializes on (tenant, staff), claims IdempotencyKey when set, re-reads
// active appointments intersecting the interval and inserts only when there
// are none.
type BookParams struct {
	Appointment    model.Appointment
	IdempotencyKey string
	IdempotencyTTL time.Duration
}

type BookOutcome struct {
	Appointment model.Appointment
	// Conflict means the staff member was busy; nothing was written.
	Conflict bool
	// Replayed means the key had already produced Appointment.
	Replayed bool
}

type AppointmentFilter struct {
	StaffID  string
	ClientID string
	Status   model.Status
	From     time.Time
	To       time.Time
	Limit    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// EffectiveLimit defaults a non-positive Limit and caps large ones.
func (f AppointmentFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return min(f.Limit, MaxListLimit)
}

type Overlap struct {
	StaffID string
	First   model.Appointment
	Second  model.Appointment
}
