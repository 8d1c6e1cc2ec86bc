// Package delivery turns appointment events into client email and SMS.
package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	EventBooked    = "booking.appointment.booked.v1"
	EventConfirmed = "booking.appointment.confirmed.v1"
	EventCancelled = "booking.appointment.cancelled.v1"
)

var ErrUnsupportedEvent = errors.New("unsupported event type")

// Event mirrors the booking-service payload.
type Event struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	BusinessID    string    `json:"business_id"`
	AppointmentID string    `json:"appointment_id"`
	StaffID       string    `json:"staff_id"`
	ServiceID     string    `json:"service_id"`
	LocationID    string    `json:"location_id"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email"`
	ClientPhone   string    `json:"client_phone"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Decode parses and checks a payload. Errors mean the message can never be
// processed and should be dropped.
func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	switch ev.EventType {
	case EventBooked, EventConfirmed, EventCancelled:
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnsupportedEvent, ev.EventType)
	}
	if ev.AppointmentID == "" || ev.BusinessID == "" || ev.StartTime.IsZero() {
		return ev, errors.New("event is missing appointment_id, business_id or start_time")
	}
	return ev, nil
}
