// Package appointments owns status transitions after an appointment exists.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/auth"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrForbidden         = errors.New("not allowed to change this appointment")
	ErrPastCutoff        = errors.New("too late to cancel")
)

var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCancelled, model.StatusCompleted, model.StatusNoShow},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) error
}

type Service struct {
	store    storage.Store
	notifier Notifier
	logger   *slog.Logger
	cutoff   time.Duration
	now      func() time.Time
}

func NewService(store storage.Store, notifier Notifier, logger *slog.Logger, cancellationCutoff time.Duration) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		cutoff:   cancellationCutoff,
		now:      time.Now,
	}
}

// Transition moves an appointment to status on behalf of actor. Staff and
// above may make any legal move inside their tenant; clients may only cancel
// their own appointment before the cancellation cutoff.
func (s *Service) Transition(ctx context.Context, actor auth.Principal, id string, to model.Status, reason string) (model.Appointment, error) {
	if actor.BusinessID == "" {
		return model.Appointment{}, ErrForbidden
	}
	tenant := s.store.Tenant(model.TenantID(actor.BusinessID))
	now := s.now()

	appt, err := tenant.UpdateAppointment(ctx, id, func(a *model.Appointment) error {
		if err := s.authorize(actor, *a, to, now); err != nil {
			return err
		}
		return apply(a, to, strings.TrimSpace(reason), now)
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment status changed",
		"business_id", actor.BusinessID,
		"appointment_id", appt.ID,
		"status", appt.Status,
		"actor", actor.UserID,
	)
	s.emit(ctx, appt)
	return appt, nil
}

// ConfirmDeposit moves a pending appointment to confirmed once its deposit
// is paid. Repeating it is a no-op reporting changed=false.
func (s *Service) ConfirmDeposit(ctx context.Context, tenantID model.TenantID, id, paymentRef string) (model.Appointment, bool, error) {
	return s.settle(ctx, tenantID, id, func(a *model.Appointment, now time.Time) (bool, error) {
		if a.Status == model.StatusConfirmed && a.PaymentRef == paymentRef {
			return false, nil
		}
		if a.Status != model.StatusPending {
			return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, model.StatusConfirmed)
		}
		a.PaymentRef = paymentRef
		return true, apply(a, model.StatusConfirmed, "", now)
	})
}

// ExpireDeposit cancels an appointment whose deposit window lapsed. Anything
// no longer pending is left alone.
func (s *Service) ExpireDeposit(ctx context.Context, tenantID model.TenantID, id string) (model.Appointment, bool, error) {
	return s.settle(ctx, tenantID, id, func(a *model.Appointment, now time.Time) (bool, error) {
		if a.Status != model.StatusPending {
			return false, nil
		}
		return true, apply(a, model.StatusCancelled, "deposit expired", now)
	})
}

// settle runs a payment-driven change, which carries no principal.
func (s *Service) settle(ctx context.Context, tenantID model.TenantID, id string, fn func(*model.Appointment, time.Time) (bool, error)) (model.Appointment, bool, error) {
	changed := false
	now := s.now()
	appt, err := s.store.Tenant(tenantID).UpdateAppointment(ctx, id, func(a *model.Appointment) error {
		var err error
		changed, err = fn(a, now)
		return err
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if changed {
		s.logger.Info("appointment status changed", "business_id", tenantID, "appointment_id", id, "status", appt.Status, "actor", "payment")
		s.emit(ctx, appt)
	}
	return appt, changed, nil
}

func (s *Service) authorize(actor auth.Principal, a model.Appointment, to model.Status, now time.Time) error {
	if actor.Role.AtLeast(auth.RoleStaff) {
		return nil
	}
	if actor.Role != auth.RoleClient || to != model.StatusCancelled {
		return ErrForbidden
	}
	if a.ClientID == "" || a.ClientID != actor.UserID {
		return ErrForbidden
	}
	if a.Start.Sub(now) < s.cutoff {
		return ErrPastCutoff
	}
	return nil
}

func apply(a *model.Appointment, to model.Status, reason string, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, to)
	}
	a.Status = to
	if to == model.StatusCancelled {
		at := now.UTC()
		a.CancelledAt = &at
		a.CancelReason = reason
	}
	return nil
}

func (s *Service) emit(ctx context.Context, appt model.Appointment) {
	if s.notifier == nil {
		return
	}
	var eventType string
	switch appt.Status {
	case model.StatusConfirmed:
		eventType = notify.EventAppointmentConfirmed
	case model.StatusCancelled:
		eventType = notify.EventAppointmentCancelled
	default:
		return
	}
	if err := s.notifier.Dispatch(ctx, notify.NewEvent(eventType, appt)); err != nil {
		s.logger.Warn("status notification not queued", "err", err, "appointment_id", appt.ID)
	}
}
