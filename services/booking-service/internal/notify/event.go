package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Event is the wire payload shared with notification-service.
type Event struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	TenantID      string    `json:"business_id"`
	AppointmentID string    `json:"appointment_id"`
	StaffID       string    `json:"staff_id"`
	ServiceID     string    `json:"service_id"`
	LocationID    string    `json:"location_id"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email,omitempty"`
	ClientPhone   string    `json:"client_phone,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewEvent(eventType string, appt model.Appointment) Event {
	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		TenantID:      string(appt.TenantID),
		AppointmentID: appt.ID,
		StaffID:       appt.StaffID,
		ServiceID:     appt.ServiceID,
		LocationID:    appt.LocationID,
		ClientName:    appt.ClientName,
		ClientEmail:   appt.ClientEmail,
		ClientPhone:   appt.ClientPhone,
		StartTime:     appt.Start.UTC(),
		EndTime:       appt.End.UTC(),
		Status:        string(appt.Status),
		Reason:        appt.CancelReason,
		OccurredAt:    time.Now().UTC(),
	}
}
