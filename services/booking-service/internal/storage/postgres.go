package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// PostgresStore keeps the no-overlap rule with three layers: a transaction
// scoped advisory lock per (tenant, staff), an overlap re-read before insert,
// and the appointments_no_overlap exclusion constraint.
type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Tenant(id model.TenantID) Tenant {
	return &pgTenant{pool: s.pool, id: id}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Tenants(ctx context.Context) ([]model.TenantID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, wrap(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]model.TenantID, len(ids))
	for i, id := range ids {
		out[i] = model.TenantID(id)
	}
	return out, nil
}

func (s *PostgresStore) RecordProviderEvent(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO provider_events (provider, event_id, event_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, eventType)
	if err != nil {
		return false, wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RunExclusive holds a session advisory lock on a dedicated connection for
// the duration of fn.
func (s *PostgresStore) RunExclusive(ctx context.Context, lockKey int64, fn func(context.Context) error) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, wrap(err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockKey).Scan(&locked); err != nil {
		return false, wrap(err)
	}
	if !locked {
		return false, nil
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey)
	}()
	return true, fn(ctx)
}

type pgTenant struct {
	pool *db.Pool
	id   model.TenantID
}

func (t *pgTenant) ID() model.TenantID { return t.id }

func (t *pgTenant) Service(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	var minutes int
	err := t.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, duration_minutes, price_cents, deposit_cents, currency, active
		FROM services
		WHERE tenant_id = $1 AND id = $2
	`, string(t.id), id).Scan(&svc.ID, &svc.TenantID, &svc.Name, &minutes, &svc.PriceCents, &svc.DepositCents, &svc.Currency, &svc.Active)
	if err != nil {
		return model.Service{}, wrap(err)
	}
	svc.Duration = time.Duration(minutes) * time.Minute
	return svc, nil
}

func (t *pgTenant) Location(ctx context.Context, id string) (model.Location, error) {
	var loc model.Location
	err := t.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, timezone
		FROM locations
		WHERE tenant_id = $1 AND id = $2
	`, string(t.id), id).Scan(&loc.ID, &loc.TenantID, &loc.Name, &loc.Timezone)
	if err != nil {
		return model.Location{}, wrap(err)
	}
	return loc, nil
}

func (t *pgTenant) Staff(ctx context.Context, id string) (model.Staff, error) {
	var st model.Staff
	err := t.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, email, active, last_booked_at
		FROM staff
		WHERE tenant_id = $1 AND id = $2
	`, string(t.id), id).Scan(&st.ID, &st.TenantID, &st.Name, &st.Email, &st.Active, &st.LastBookedAt)
	if err != nil {
		return model.Staff{}, wrap(err)
	}
	return st, nil
}

func (t *pgTenant) QualifiedStaff(ctx context.Context, serviceID, locationID string) ([]model.Staff, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT s.id, s.tenant_id, s.name, s.email, s.active, s.last_booked_at
		FROM staff s
		JOIN staff_services ss ON ss.staff_id = s.id AND ss.tenant_id = s.tenant_id
		WHERE s.tenant_id = $1
			AND ss.service_id = $2
			AND ss.location_id = $3
			AND s.active
		ORDER BY s.last_booked_at ASC NULLS FIRST, s.id ASC
	`, string(t.id), serviceID, locationID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var st model.Staff
		if err := rows.Scan(&st.ID, &st.TenantID, &st.Name, &st.Email, &st.Active, &st.LastBookedAt); err != nil {
			return nil, wrap(err)
		}
		out = append(out, st)
	}
	return out, wrap(rows.Err())
}

func (t *pgTenant) Windows(ctx context.Context, staffID, locationID string) ([]model.AvailabilityWindow, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT staff_id, location_id,
			COALESCE(weekday, 0),
			COALESCE(to_char(on_date, 'YYYY-MM-DD'), ''),
			EXTRACT(EPOCH FROM open_time)::bigint,
			EXTRACT(EPOCH FROM close_time)::bigint,
			closed
		FROM availability_windows
		WHERE tenant_id = $1 AND staff_id = $2 AND location_id = $3
		ORDER BY on_date NULLS FIRST, weekday, open_time
	`, string(t.id), staffID, locationID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		var weekday int16
		var openSecs, closeSecs int64
		if err := rows.Scan(&w.StaffID, &w.LocationID, &weekday, &w.Date, &openSecs, &closeSecs, &w.Closed); err != nil {
			return nil, wrap(err)
		}
		w.Weekday = time.Weekday(weekday)
		w.Open = time.Duration(openSecs) * time.Second
		w.Close = time.Duration(closeSecs) * time.Second
		out = append(out, w)
	}
	return out, wrap(rows.Err())
}

func (t *pgTenant) Busy(ctx context.Context, staffID string, iv model.Interval) ([]model.Interval, error) {
	return busyIntervals(ctx, t.pool, t.id, staffID, iv)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func busyIntervals(ctx context.Context, q querier, tenant model.TenantID, staffID string, iv model.Interval) ([]model.Interval, error) {
	rows, err := q.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE tenant_id = $1
			AND staff_id = $2
			AND status IN ('pending', 'confirmed')
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, string(tenant), staffID, iv.Start, iv.End)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []model.Interval
	for rows.Next() {
		var b model.Interval
		if err := rows.Scan(&b.Start, &b.End); err != nil {
			return nil, wrap(err)
		}
		out = append(out, b)
	}
	return out, wrap(rows.Err())
}

func (t *pgTenant) Book(ctx context.Context, p BookParams) (BookOutcome, error) {
	appt := p.Appointment
	appt.TenantID = t.id
	appt.IdempotencyKey = p.IdempotencyKey

	var out BookOutcome
	err := t.pool.InTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`, string(t.id), appt.StaffID); err != nil {
			return err
		}

		if p.IdempotencyKey != "" {
			prior, err := claimIdempotencyKey(ctx, tx, t.id, p.IdempotencyKey, p.IdempotencyTTL)
			if err != nil {
				return err
			}
			if prior != "" {
				existing, err := scanAppointment(tx.QueryRow(ctx, selectAppointment+` WHERE tenant_id = $1 AND id = $2`, string(t.id), prior))
				if err != nil {
					return err
				}
				out = BookOutcome{Appointment: existing, Replayed: true}
				return nil
			}
		}

		busy, err := busyIntervals(ctx, tx, t.id, appt.StaffID, appt.Interval())
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			out = BookOutcome{Conflict: true}
			return errConflict
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO appointments
				(tenant_id, staff_id, location_id, service_id, client_id, client_name, client_email, client_phone,
				 start_time, end_time, status, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at
		`, string(t.id), appt.StaffID, appt.LocationID, appt.ServiceID, appt.ClientID, appt.ClientName,
			appt.ClientEmail, appt.ClientPhone, appt.Start, appt.End, string(appt.Status), appt.IdempotencyKey,
		).Scan(&appt.ID, &appt.CreatedAt)
		if err != nil {
			if db.IsExclusionViolation(err) {
				out = BookOutcome{Conflict: true}
				return errConflict
			}
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE staff SET last_booked_at = now() WHERE tenant_id = $1 AND id = $2
		`, string(t.id), appt.StaffID); err != nil {
			return err
		}

		if p.IdempotencyKey != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE booking_idempotency_keys
				SET appointment_id = $3
				WHERE tenant_id = $1 AND idempotency_key = $2
			`, string(t.id), p.IdempotencyKey, appt.ID); err != nil {
				return err
			}
		}

		out = BookOutcome{Appointment: appt}
		return nil
	})
	if errors.Is(err, errConflict) {
		return out, nil
	}
	if err != nil {
		return BookOutcome{}, wrap(err)
	}
	return out, nil
}

// errConflict rolls the transaction back without surfacing as a failure.
var errConflict = errors.New("conflict")

// claimIdempotencyKey inserts or revives an expired key row and locks it.
// It returns the appointment id a live key already produced, or "".
func claimIdempotencyKey(ctx context.Context, tx pgx.Tx, tenant model.TenantID, key string, ttl time.Duration) (string, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (tenant_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, idempotency_key) DO UPDATE
			SET appointment_id = NULL, created_at = now()
			WHERE booking_idempotency_keys.created_at < now() - make_interval(secs => $3)
	`, string(tenant), key, ttl.Seconds()); err != nil {
		return "", err
	}
	var prior string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id, '')
		FROM booking_idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, string(tenant), key).Scan(&prior)
	return prior, err
}

func (t *pgTenant) IdempotentAppointment(ctx context.Context, key string, ttl time.Duration) (model.Appointment, bool, error) {
	appt, err := scanAppointment(t.pool.QueryRow(ctx, selectAppointmentAs("a")+`
		JOIN booking_idempotency_keys k ON k.tenant_id = a.tenant_id AND k.appointment_id = a.id
		WHERE k.tenant_id = $1
			AND k.idempotency_key = $2
			AND k.created_at >= now() - make_interval(secs => $3)
	`, string(t.id), key, ttl.Seconds()))
	if db.IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, wrap(err)
	}
	return appt, true, nil
}

func (t *pgTenant) Appointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(t.pool.QueryRow(ctx, selectAppointment+` WHERE tenant_id = $1 AND id = $2`, string(t.id), id))
	if err != nil {
		return model.Appointment{}, wrap(err)
	}
	return appt, nil
}

func (t *pgTenant) Appointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	limit := f.EffectiveLimit()
	rows, err := t.pool.Query(ctx, selectAppointment+`
		WHERE tenant_id = $1
			AND ($2::text = '' OR staff_id = $2::text)
			AND ($3::text = '' OR client_id = $3::text)
			AND ($4::text = '' OR status = $4::text)
			AND ($5::timestamptz IS NULL OR end_time > $5)
			AND ($6::timestamptz IS NULL OR start_time < $6)
		ORDER BY start_time ASC
		LIMIT $7
	`, string(t.id), f.StaffID, f.ClientID, string(f.Status), nullTime(f.From), nullTime(f.To), limit)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, wrap(err)
		}
		out = append(out, appt)
	}
	return out, wrap(rows.Err())
}

func (t *pgTenant) UpdateAppointment(ctx context.Context, id string, fn func(*model.Appointment) error) (model.Appointment, error) {
	var updated model.Appointment
	err := t.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, selectAppointment+` WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, string(t.id), id))
		if err != nil {
			return err
		}
		if err := fn(&appt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = $3, cancelled_at = $4, cancel_reason = $5, payment_ref = $6
			WHERE tenant_id = $1 AND id = $2
		`, string(t.id), id, string(appt.Status), appt.CancelledAt, appt.CancelReason, appt.PaymentRef); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, wrap(err)
	}
	return updated, nil
}

func (t *pgTenant) Overlaps(ctx context.Context) ([]Overlap, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT `+appointmentColumns("a")+`, `+appointmentColumns("b")+`
		FROM appointments a
		JOIN appointments b
			ON b.tenant_id = a.tenant_id
			AND b.staff_id = a.staff_id
			AND a.id < b.id
			AND a.start_time < b.end_time
			AND b.start_time < a.end_time
		WHERE a.tenant_id = $1
			AND a.status IN ('pending', 'confirmed')
			AND b.status IN ('pending', 'confirmed')
		ORDER BY a.staff_id, a.start_time
	`, string(t.id))
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var out []Overlap
	for rows.Next() {
		var a, b appointmentRow
		dest := append(a.dest(), b.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, wrap(err)
		}
		first, second := a.model(), b.model()
		out = append(out, Overlap{StaffID: first.StaffID, First: first, Second: second})
	}
	return out, wrap(rows.Err())
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// wrap maps pgx sentinels onto the storage ones, keeping the cause.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case db.IsTransient(err):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	default:
		return err
	}
}
