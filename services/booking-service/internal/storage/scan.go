package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

var appointmentFields = []string{
	"id", "tenant_id", "staff_id", "location_id", "service_id", "client_id", "client_name",
	"client_email", "client_phone", "start_time", "end_time", "status", "idempotency_key",
	"payment_ref", "created_at", "cancelled_at", "cancel_reason",
}

func appointmentColumns(alias string) string {
	cols := make([]string, len(appointmentFields))
	for i, f := range appointmentFields {
		cols[i] = fmt.Sprintf("%s.%s", alias, f)
	}
	return strings.Join(cols, ", ")
}

func selectAppointmentAs(alias string) string {
	return "SELECT " + appointmentColumns(alias) + " FROM appointments " + alias
}

var selectAppointment = "SELECT " + strings.Join(appointmentFields, ", ") + " FROM appointments"

type appointmentRow struct {
	a           model.Appointment
	tenantID    string
	status      string
	cancelledAt *time.Time
}

func (r *appointmentRow) dest() []any {
	return []any{
		&r.a.ID, &r.tenantID, &r.a.StaffID, &r.a.LocationID, &r.a.ServiceID, &r.a.ClientID, &r.a.ClientName,
		&r.a.ClientEmail, &r.a.ClientPhone, &r.a.Start, &r.a.End, &r.status, &r.a.IdempotencyKey,
		&r.a.PaymentRef, &r.a.CreatedAt, &r.cancelledAt, &r.a.CancelReason,
	}
}

func (r *appointmentRow) model() model.Appointment {
	appt := r.a
	appt.TenantID = model.TenantID(r.tenantID)
	appt.Status = model.Status(r.status)
	appt.CancelledAt = r.cancelledAt
	return appt
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var r appointmentRow
	if err := row.Scan(r.dest()...); err != nil {
		return model.Appointment{}, err
	}
	return r.model(), nil
}
