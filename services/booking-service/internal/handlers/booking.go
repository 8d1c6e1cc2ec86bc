package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/md-rashed-zaman/salonbook/libs/auth"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/guard"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type Booker interface {
	AttemptBooking(ctx context.Context, req guard.Request) (guard.Result, error)
}

type SlotFinder interface {
	Free(ctx context.Context, q slots.Query) ([]availability.Slot, error)
	Alternatives(ctx context.Context, q slots.Query, desired time.Time, n int) ([]availability.Slot, error)
}

type BookingHandler struct {
	booker       Booker
	slots        SlotFinder
	logger       *slog.Logger
	retryAfter   time.Duration
	alternatives int
}

func NewBookingHandler(booker Booker, finder SlotFinder, logger *slog.Logger, retryAfter time.Duration, alternatives int) *BookingHandler {
	if retryAfter <= 0 {
		retryAfter = 2 * time.Second
	}
	if alternatives <= 0 {
		alternatives = 3
	}
	return &BookingHandler{
		booker:       booker,
		slots:        finder,
		logger:       logger,
		retryAfter:   retryAfter,
		alternatives: alternatives,
	}
}

type bookRequest struct {
	BusinessID     string `json:"business_id"`
	LocationID     string `json:"location_id"`
	ServiceID      string `json:"service_id"`
	StaffID        string `json:"staff_id"`
	StartTime      string `json:"start_time"`
	ClientName     string `json:"client_name"`
	ClientEmail    string `json:"client_email"`
	ClientPhone    string `json:"client_phone"`
	IdempotencyKey string `json:"idempotency_key"`
}

type bookResponse struct {
	Appointment appointmentJSON `json:"appointment"`
	Replayed    bool            `json:"replayed,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

type noAvailabilityResponse struct {
	Error        apiError     `json:"error"`
	Requested    intervalJSON `json:"requested"`
	Alternatives []slotJSON   `json:"alternatives"`
}

type transientResponse struct {
	Error     apiError     `json:"error"`
	Requested intervalJSON `json:"requested"`
}

// Book handles POST /api/v1/public/book.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With("op", "handlers.Book", "request_id", httpx.RequestIDFromContext(r.Context()))

	var req bookRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "failed to decode request")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		writeErrorField(w, r, http.StatusBadRequest, CodeBadRequest, "start_time must be RFC3339", "start_time")
		return
	}

	greq := guard.Request{
		TenantID:       model.TenantID(req.BusinessID),
		StaffID:        req.StaffID,
		ServiceID:      req.ServiceID,
		LocationID:     req.LocationID,
		Start:          start,
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientPhone:    req.ClientPhone,
		IdempotencyKey: req.IdempotencyKey,
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		greq.IdempotencyKey = key
	}
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.Role == auth.RoleClient && p.BusinessID == strings.TrimSpace(req.BusinessID) {
		greq.ClientID = p.UserID
	}

	res, err := h.booker.AttemptBooking(r.Context(), greq)
	if err != nil {
		h.writeBookingError(w, r, log, err)
		return
	}

	switch res.Outcome {
	case guard.OutcomeBooked:
		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		writeJSON(w, r, status, bookResponse{
			Appointment: toAppointment(res.Appointment),
			Replayed:    res.Replayed,
			Warnings:    res.Warnings,
		})

	case guard.OutcomeNoAvailability:
		q := slots.Query{
			TenantID:   greq.TenantID,
			ServiceID:  strings.TrimSpace(greq.ServiceID),
			LocationID: strings.TrimSpace(greq.LocationID),
			StaffID:    strings.TrimSpace(greq.StaffID),
		}
		alts, err := h.slots.Alternatives(r.Context(), q, res.Requested.Start, h.alternatives)
		if err != nil {
			log.Warn("alternatives lookup failed", "err", err)
		}
		writeJSON(w, r, http.StatusConflict, noAvailabilityResponse{
			Error:        apiError{Code: CodeSlotNotAvailable, Message: res.Reason},
			Requested:    toInterval(res.Requested),
			Alternatives: toSlots(alts),
		})

	case guard.OutcomeTransientFailure:
		log.Warn("booking temporarily unavailable", "reason", res.Reason)
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Round(time.Second)/time.Second)))
		writeJSON(w, r, http.StatusServiceUnavailable, transientResponse{
			Error:     apiError{Code: CodeUnavailable, Message: "booking is temporarily unavailable, retry shortly"},
			Requested: toInterval(res.Requested),
		})

	default:
		log.Error("unexpected booking outcome", "outcome", res.Outcome.String())
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to create booking")
	}
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var verr *guard.ValidationError
	switch {
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, guard.ErrUnknownService),
			errors.Is(err, guard.ErrUnknownLocation),
			errors.Is(err, guard.ErrUnknownStaff),
			errors.Is(err, guard.ErrStaffNotQualified),
			errors.Is(err, guard.ErrOutsideAvailability):
			status = http.StatusUnprocessableEntity
		}
		writeErrorField(w, r, status, CodeValidation, verr.Err.Error(), verr.Field)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("booking request abandoned", "err", err)
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Round(time.Second)/time.Second)))
		writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "request timed out")
	default:
		log.Error("booking failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to create booking")
	}
}

// Slots handles GET /api/v1/public/slots.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := slots.Query{
		TenantID:   model.TenantID(strings.TrimSpace(q.Get("business_id"))),
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		LocationID: strings.TrimSpace(q.Get("location_id")),
		StaffID:    strings.TrimSpace(q.Get("staff_id")),
		Date:       strings.TrimSpace(q.Get("date")),
	}
	if query.TenantID == "" || query.ServiceID == "" || query.LocationID == "" || query.Date == "" {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "business_id, service_id, location_id and date are required")
		return
	}

	free, err := h.slots.Free(r.Context(), query)
	switch {
	case errors.Is(err, slots.ErrInvalidDate):
		writeErrorField(w, r, http.StatusBadRequest, CodeBadRequest, err.Error(), "date")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, "service or location not found")
		return
	case err != nil:
		h.logger.Error("slot lookup failed", "err", err, "business_id", query.TenantID)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to list slots")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"slots": toSlots(free)})
}
