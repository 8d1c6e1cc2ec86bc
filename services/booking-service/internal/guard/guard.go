// Package guard accepts or rejects booking requests so that no staff member
// ever holds two active appointments with intersecting intervals.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) error
}

type Config struct {
	// InitialStatus applies to services without a deposit; deposit services
	// always start pending.
	InitialStatus  model.Status
	IdempotencyTTL time.Duration
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Now            func() time.Time
}

type Guard struct {
	store    storage.Store
	locker   lock.Locker
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
	tracer   trace.Tracer
}

func New(store storage.Store, locker lock.Locker, notifier Notifier, logger *slog.Logger, cfg Config) *Guard {
	if cfg.InitialStatus != model.StatusPending {
		cfg.InitialStatus = model.StatusConfirmed
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 25 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Guard{
		store:    store,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		tracer:   otel.Tracer("booking-service/guard"),
	}
}

// AttemptBooking returns a Result for every expected outcome, including
// conflicts and exhausted retries. The error is non-nil only for a
// *ValidationError, a cancelled context or an unexpected storage failure.
func (g *Guard) AttemptBooking(ctx context.Context, req Request) (Result, error) {
	req.normalize()
	if err := req.validate(g.cfg.Now()); err != nil {
		return Result{}, err
	}
	ctx, span := g.tracer.Start(ctx, "guard.AttemptBooking", trace.WithAttributes(
		attribute.String("booking.tenant_id", string(req.TenantID)),
		attribute.String("booking.service_id", req.ServiceID),
		attribute.Bool("booking.auto_assign", req.StaffID == ""),
	))
	defer span.End()

	res, err := g.attempt(ctx, req)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetAttributes(attribute.String("booking.outcome", res.Outcome.String()))
	}
	return res, err
}

func (g *Guard) attempt(ctx context.Context, req Request) (Result, error) {
	tenant := g.store.Tenant(req.TenantID)

	plan, err := retry(ctx, g, "resolve", func(ctx context.Context) (plan, error) {
		return g.resolve(ctx, tenant, req)
	})
	if err != nil {
		if isTransient(err) {
			return TransientFailure(model.Interval{Start: req.Start}, "storage unavailable while resolving the request"), nil
		}
		return Result{}, err
	}
	if plan.replay != nil {
		res := Booked(*plan.replay)
		res.Replayed = true
		return res, nil
	}

	var transientErr error
	for _, staffID := range plan.candidates {
		appt := plan.appointment
		appt.StaffID = staffID

		out, err := retry(ctx, g, "book", func(ctx context.Context) (storage.BookOutcome, error) {
			return g.book(ctx, tenant, appt, plan.loc, req.IdempotencyKey)
		})
		if err != nil {
			if isTransient(err) {
				g.logger.Warn("booking attempt exhausted retries",
					"err", err, "business_id", req.TenantID, "staff_id", staffID)
				transientErr = err
				continue
			}
			return Result{}, err
		}
		if out.Conflict {
			g.logger.Info("staff member busy", "business_id", req.TenantID, "staff_id", staffID,
				"start", plan.interval.Start, "end", plan.interval.End)
			continue
		}

		res := Booked(out.Appointment)
		if out.Replayed {
			res.Replayed = true
			return res, nil
		}
		if w := g.notifyBooked(ctx, out.Appointment); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
		g.logger.Info("appointment booked",
			"business_id", req.TenantID,
			"appointment_id", out.Appointment.ID,
			"staff_id", staffID,
			"status", out.Appointment.Status,
		)
		return res, nil
	}

	if transientErr != nil {
		return TransientFailure(plan.interval, "storage kept failing: "+transientErr.Error()), nil
	}
	g.logger.Info("no availability", "business_id", req.TenantID, "service_id", req.ServiceID,
		"start", plan.interval.Start, "candidates", len(plan.candidates))
	return NoAvailability(plan.interval), nil
}

type plan struct {
	interval    model.Interval
	loc         *time.Location
	appointment model.Appointment
	candidates  []string
	replay      *model.Appointment
}

// resolve turns the request into a candidate interval, a template
// appointment and the ordered staff ids worth trying.
func (g *Guard) resolve(ctx context.Context, tenant storage.Tenant, req Request) (plan, error) {
	svc, err := tenant.Service(ctx, req.ServiceID)
	if err != nil {
		return plan{}, lookupErr(err, "service_id", ErrUnknownService)
	}
	if !svc.Active || svc.Duration <= 0 {
		return plan{}, invalid("service_id", ErrUnknownService)
	}
	loc, err := tenant.Location(ctx, req.LocationID)
	if err != nil {
		return plan{}, lookupErr(err, "location_id", ErrUnknownLocation)
	}

	iv := model.Interval{Start: req.Start, End: req.Start.Add(svc.Duration)}
	status := g.cfg.InitialStatus
	if svc.RequiresDeposit() {
		status = model.StatusPending
	}
	p := plan{
		interval: iv,
		loc:      loc.Loc(),
		appointment: model.Appointment{
			TenantID:    tenant.ID(),
			LocationID:  loc.ID,
			ServiceID:   svc.ID,
			ClientID:    req.ClientID,
			ClientName:  req.ClientName,
			ClientEmail: req.ClientEmail,
			ClientPhone: req.ClientPhone,
			Start:       iv.Start,
			End:         iv.End,
			Status:      status,
		},
	}

	if req.IdempotencyKey != "" {
		prior, ok, err := tenant.IdempotentAppointment(ctx, req.IdempotencyKey, g.cfg.IdempotencyTTL)
		if err != nil {
			return plan{}, err
		}
		if ok {
			p.replay = &prior
			return p, nil
		}
	}

	qualified, err := tenant.QualifiedStaff(ctx, svc.ID, loc.ID)
	if err != nil {
		return plan{}, err
	}

	if req.StaffID != "" {
		if _, err := tenant.Staff(ctx, req.StaffID); err != nil {
			return plan{}, lookupErr(err, "staff_id", ErrUnknownStaff)
		}
		if !containsStaff(qualified, req.StaffID) {
			return plan{}, invalid("staff_id", ErrStaffNotQualified)
		}
		ok, err := g.available(ctx, tenant, req.StaffID, loc, iv)
		if err != nil {
			return plan{}, err
		}
		if !ok {
			return plan{}, invalid("start_time", ErrOutsideAvailability)
		}
		p.candidates = []string{req.StaffID}
		return p, nil
	}

	for _, st := range qualified {
		ok, err := g.available(ctx, tenant, st.ID, loc, iv)
		if err != nil {
			return plan{}, err
		}
		if ok {
			p.candidates = append(p.candidates, st.ID)
		}
	}
	return p, nil
}

func (g *Guard) available(ctx context.Context, tenant storage.Tenant, staffID string, loc model.Location, iv model.Interval) (bool, error) {
	rows, err := tenant.Windows(ctx, staffID, loc.ID)
	if err != nil {
		return false, err
	}
	return availability.Within(availability.ForDate(rows, iv.Start, loc.Loc()), iv), nil
}

// book runs one atomic unit for one candidate, bracketed by the external lock.
func (g *Guard) book(ctx context.Context, tenant storage.Tenant, appt model.Appointment, loc *time.Location, key string) (storage.BookOutcome, error) {
	ctx, span := g.tracer.Start(ctx, "guard.book", trace.WithAttributes(
		attribute.String("booking.staff_id", appt.StaffID),
	))
	defer span.End()

	release, err := g.locker.Acquire(ctx, lock.ScheduleKey(tenant.ID(), appt.StaffID, appt.Start, loc))
	if err != nil {
		span.RecordError(err)
		return storage.BookOutcome{}, err
	}
	defer release()

	out, err := tenant.Book(ctx, storage.BookParams{
		Appointment:    appt,
		IdempotencyKey: key,
		IdempotencyTTL: g.cfg.IdempotencyTTL,
	})
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	span.SetAttributes(attribute.Bool("booking.conflict", out.Conflict), attribute.Bool("booking.replayed", out.Replayed))
	return out, nil
}

func (g *Guard) notifyBooked(ctx context.Context, appt model.Appointment) string {
	if g.notifier == nil {
		return ""
	}
	if err := g.notifier.Dispatch(ctx, notify.NewEvent(notify.EventAppointmentBooked, appt)); err != nil {
		g.logger.Warn("confirmation notification not queued", "err", err, "appointment_id", appt.ID)
		return "confirmation notification could not be queued: " + err.Error()
	}
	return ""
}

// retry runs fn with exponential backoff while it fails transiently. Other
// errors stop it immediately.
func retry[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialBackoff
	b.MaxInterval = g.cfg.MaxBackoff

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(g.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			g.logger.Warn("transient failure, retrying", "op", op, "err", err, "wait", wait)
		}),
	)
}

func isTransient(err error) bool {
	return errors.Is(err, lock.ErrBusy) || storage.IsTransient(err)
}

func lookupErr(err error, field string, sentinel error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return invalid(field, sentinel)
	}
	return fmt.Errorf("lookup %s: %w", field, err)
}

func containsStaff(list []model.Staff, id string) bool {
	for _, st := range list {
		if st.ID == id {
			return true
		}
	}
	return false
}
