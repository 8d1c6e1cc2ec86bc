package model

import "time"

type Service struct {
	ID           string
	TenantID     TenantID
	Name         string
	Duration     time.Duration
	PriceCents   int64
	DepositCents int64
	Currency     string
	Active       bool
}

// RequiresDeposit reports whether a booking must stay pending until paid.
func (s Service) RequiresDeposit() bool {
	return s.DepositCents > 0
}

type Location struct {
	ID       string
	TenantID TenantID
	Name     string
	Timezone string
}

// Loc falls back to UTC for an empty or unknown zone name.
func (l Location) Loc() *time.Location {
	if l.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Staff struct {
	ID           string
	TenantID     TenantID
	Name         string
	Email        string
	Active       bool
	LastBookedAt *time.Time
}

// AvailabilityWindow is one open/close range for a staff member at a location.
// A row with Date set applies to that calendar date only and replaces every
// weekday row for it; Closed marks the date as a day off.
type AvailabilityWindow struct {
	StaffID    string
	LocationID string
	Weekday    time.Weekday
	Date       string // YYYY-MM-DD, empty for weekly rows
	Open       time.Duration
	Close      time.Duration
	Closed     bool
}
