package delivery

import (
	"fmt"
	"strings"
	"time"
)

type Message struct {
	Subject string
	Body    string
	// Short is the SMS text.
	Short string
}

// Render builds the client-facing text. Times are shown in loc.
func Render(ev Event, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}
	when := ev.StartTime.In(loc).Format("Mon Jan 2, 15:04 MST")
	name := strings.TrimSpace(ev.ClientName)
	if name == "" {
		name = "there"
	}

	var m Message
	switch ev.EventType {
	case EventBooked:
		if ev.Status == "pending" {
			m.Subject = "Your appointment is reserved"
			m.Body = fmt.Sprintf("Hi %s,\n\nWe are holding %s for you. Your booking is confirmed once the deposit is paid.\n\nReference: %s", name, when, ev.AppointmentID)
			m.Short = fmt.Sprintf("Appointment held for %s, pending deposit. Ref %s", when, ev.AppointmentID)
		} else {
			m.Subject = "Your appointment is booked"
			m.Body = fmt.Sprintf("Hi %s,\n\nYour appointment on %s is booked.\n\nReference: %s", name, when, ev.AppointmentID)
			m.Short = fmt.Sprintf("Booked: %s. Ref %s", when, ev.AppointmentID)
		}
	case EventConfirmed:
		m.Subject = "Your appointment is confirmed"
		m.Body = fmt.Sprintf("Hi %s,\n\nYour appointment on %s is confirmed.\n\nReference: %s", name, when, ev.AppointmentID)
		m.Short = fmt.Sprintf("Confirmed: %s. Ref %s", when, ev.AppointmentID)
	case EventCancelled:
		m.Subject = "Your appointment was cancelled"
		m.Body = fmt.Sprintf("Hi %s,\n\nYour appointment on %s was cancelled.", name, when)
		m.Short = fmt.Sprintf("Cancelled: %s.", when)
		if ev.Reason != "" {
			m.Body += " Reason: " + ev.Reason + "."
			m.Short += " " + ev.Reason + "."
		}
		m.Body += fmt.Sprintf("\n\nReference: %s", ev.AppointmentID)
	}
	return m
}
