package model

import "time"

// TenantID identifies a salon. Every stored row belongs to exactly one tenant.
type TenantID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return st, true
	}
	return "", false
}

// Active statuses hold the staff member's time.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// ActiveStatuses is the set the no-overlap rule applies to.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

func (i Interval) Valid() bool { return i.End.After(i.Start) }

// Overlaps is a1 < b2 && b1 < a2, so back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

type Appointment struct {
	ID             string
	TenantID       TenantID
	StaffID        string
	LocationID     string
	ServiceID      string
	ClientID       string
	ClientName     string
	ClientEmail    string
	ClientPhone    string
	Start          time.Time
	End            time.Time
	Status         Status
	IdempotencyKey string
	PaymentRef     string
	CreatedAt      time.Time
	CancelledAt    *time.Time
	CancelReason   string
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End}
}
