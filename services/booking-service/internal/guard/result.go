package guard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

type Outcome int

const (
	OutcomeBooked Outcome = iota + 1
	OutcomeNoAvailability
	OutcomeTransientFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBooked:
		return "booked"
	case OutcomeNoAvailability:
		return "no_availability"
	case OutcomeTransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Request is one booking attempt. StaffID empty means any qualified staff.
// Duration is never taken from the caller; it comes from the service.
type Request struct {
	TenantID       model.TenantID
	StaffID        string
	ServiceID      string
	LocationID     string
	Start          time.Time
	ClientID       string
	ClientName     string
	ClientEmail    string
	ClientPhone    string
	IdempotencyKey string
}

// Result is Booked, NoAvailability or TransientFailure; see Outcome.
type Result struct {
	Outcome     Outcome
	Appointment model.Appointment
	Requested   model.Interval
	Reason      string
	// Replayed is set when an idempotency key returned an earlier booking.
	Replayed bool
	// Warnings carry non-fatal problems such as an undelivered notification.
	Warnings []string
}

func Booked(appt model.Appointment) Result {
	return Result{Outcome: OutcomeBooked, Appointment: appt, Requested: appt.Interval()}
}

func NoAvailability(requested model.Interval) Result {
	return Result{Outcome: OutcomeNoAvailability, Requested: requested, Reason: "no qualified staff is free for the requested interval"}
}

func TransientFailure(requested model.Interval, reason string) Result {
	return Result{Outcome: OutcomeTransientFailure, Requested: requested, Reason: reason}
}

var (
	ErrMissingField        = errors.New("missing required field")
	ErrInvalidContact      = errors.New("client email or phone is required")
	ErrStartInPast         = errors.New("start time is in the past")
	ErrUnknownService      = errors.New("unknown service")
	ErrUnknownLocation     = errors.New("unknown location")
	ErrUnknownStaff        = errors.New("unknown staff member")
	ErrStaffNotQualified   = errors.New("staff member does not offer this service at this location")
	ErrOutsideAvailability = errors.New("requested time is outside the staff member's availability")
)

// ValidationError is returned for requests that can never succeed as sent.
// It is not retried.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func (r *Request) normalize() {
	r.TenantID = model.TenantID(strings.TrimSpace(string(r.TenantID)))
	r.StaffID = strings.TrimSpace(r.StaffID)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.LocationID = strings.TrimSpace(r.LocationID)
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.ClientEmail = strings.TrimSpace(r.ClientEmail)
	r.ClientPhone = strings.TrimSpace(r.ClientPhone)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

func (r Request) validate(now time.Time) error {
	switch {
	case r.TenantID == "":
		return invalid("business_id", ErrMissingField)
	case r.ServiceID == "":
		return invalid("service_id", ErrMissingField)
	case r.LocationID == "":
		return invalid("location_id", ErrMissingField)
	case r.Start.IsZero():
		return invalid("start_time", ErrMissingField)
	case r.ClientName == "":
		return invalid("client_name", ErrMissingField)
	case r.ClientEmail == "" && r.ClientPhone == "":
		return invalid("client_email", ErrInvalidContact)
	case r.ClientEmail != "" && !strings.Contains(r.ClientEmail, "@"):
		return invalid("client_email", ErrInvalidContact)
	case len(r.IdempotencyKey) > 255:
		return invalid("idempotency_key", errors.New("longer than 255 characters"))
	case r.Start.Before(now):
		return invalid("start_time", ErrStartInPast)
	}
	return nil
}
