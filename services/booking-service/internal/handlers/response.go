package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// Error codes returned in {"error":{"code":...}}.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidation         = "VALIDATION_FAILED"
	CodeSlotNotAvailable   = "SLOT_NOT_AVAILABLE"
	CodeUnavailable        = "TEMPORARILY_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeCancellationClosed = "CANCELLATION_WINDOW_CLOSED"
	CodePaymentProvider    = "PAYMENT_PROVIDER_ERROR"
	CodeInternal           = "REQUEST_FAILED"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeErrorField(w, r, status, code, msg, "")
}

func writeErrorField(w http.ResponseWriter, r *http.Request, status int, code, msg, field string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: apiError{Code: code, Message: msg, Field: field}})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

type intervalJSON struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toInterval(iv model.Interval) intervalJSON {
	return intervalJSON{StartTime: formatTime(iv.Start), EndTime: formatTime(iv.End)}
}

type slotJSON struct {
	StaffID string `json:"staff_id"`
	intervalJSON
}

func toSlots(in []availability.Slot) []slotJSON {
	out := make([]slotJSON, 0, len(in))
	for _, s := range in {
		out = append(out, slotJSON{StaffID: s.StaffID, intervalJSON: toInterval(s.Interval)})
	}
	return out
}

type appointmentJSON struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	StaffID       string `json:"staff_id"`
	LocationID    string `json:"location_id"`
	ServiceID     string `json:"service_id"`
	ClientID      string `json:"client_id,omitempty"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientPhone   string `json:"client_phone,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
}

func toAppointment(a model.Appointment) appointmentJSON {
	out := appointmentJSON{
		AppointmentID: a.ID,
		BusinessID:    string(a.TenantID),
		StaffID:       a.StaffID,
		LocationID:    a.LocationID,
		ServiceID:     a.ServiceID,
		ClientID:      a.ClientID,
		ClientName:    a.ClientName,
		ClientEmail:   a.ClientEmail,
		ClientPhone:   a.ClientPhone,
		StartTime:     formatTime(a.Start),
		EndTime:       formatTime(a.End),
		Status:        string(a.Status),
		CreatedAt:     formatTime(a.CreatedAt),
		CancelReason:  a.CancelReason,
	}
	if a.CancelledAt != nil {
		out.CancelledAt = formatTime(*a.CancelledAt)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
