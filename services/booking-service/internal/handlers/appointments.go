package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/md-rashed-zaman/salonbook/libs/auth"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/appointments"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type Lifecycle interface {
	Transition(ctx context.Context, actor auth.Principal, id string, to model.Status, reason string) (model.Appointment, error)
}

type AppointmentHandler struct {
	store     storage.Store
	lifecycle Lifecycle
	logger    *slog.Logger
}

func NewAppointmentHandler(store storage.Store, lifecycle Lifecycle, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{store: store, lifecycle: lifecycle, logger: logger}
}

// List handles GET /api/v1/appointments for staff and above.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	q := r.URL.Query()

	f := storage.AppointmentFilter{
		StaffID:  strings.TrimSpace(q.Get("staff_id")),
		ClientID: strings.TrimSpace(q.Get("client_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			writeErrorField(w, r, http.StatusBadRequest, CodeBadRequest, "unknown status", "status")
			return
		}
		f.Status = st
	}
	for _, tp := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := strings.TrimSpace(q.Get(tp.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorField(w, r, http.StatusBadRequest, CodeBadRequest, tp.name+" must be RFC3339", tp.name)
			return
		}
		*tp.dst = t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErrorField(w, r, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer", "limit")
			return
		}
		f.Limit = n
	}

	list, err := h.store.Tenant(model.TenantID(p.BusinessID)).Appointments(r.Context(), f)
	if err != nil {
		h.logger.Error("list appointments failed", "err", err, "business_id", p.BusinessID)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to list appointments")
		return
	}
	items := make([]appointmentJSON, 0, len(list))
	for _, a := range list {
		items = append(items, toAppointment(a))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"appointments": items})
}

// Get handles GET /api/v1/appointments/{id}. Clients only see their own.
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	appt, err := h.store.Tenant(model.TenantID(p.BusinessID)).Appointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	if !canView(p, appt) {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "appointment not found")
		return
	}
	writeJSON(w, r, http.StatusOK, toAppointment(appt))
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// UpdateStatus handles POST /api/v1/appointments/{id}/status.
func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "failed to decode request")
		return
	}
	to, ok := model.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		writeErrorField(w, r, http.StatusBadRequest, CodeBadRequest, "unknown status", "status")
		return
	}
	h.transition(w, r, to, req.Reason)
}

// Cancel handles POST /api/v1/appointments/{id}/cancel.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, CodeBadRequest, "failed to decode request")
			return
		}
	}
	h.transition(w, r, model.StatusCancelled, req.Reason)
}

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, to model.Status, reason string) {
	p, _ := auth.PrincipalFromContext(r.Context())
	appt, err := h.lifecycle.Transition(r.Context(), p, chi.URLParam(r, "id"), to, reason)
	if err != nil {
		h.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toAppointment(appt))
}

func (h *AppointmentHandler) writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, "appointment not found")
	case errors.Is(err, appointments.ErrForbidden):
		writeError(w, r, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, appointments.ErrPastCutoff):
		writeError(w, r, http.StatusUnprocessableEntity, CodeCancellationClosed, err.Error())
	case errors.Is(err, appointments.ErrIllegalTransition):
		writeError(w, r, http.StatusConflict, CodeConflict, err.Error())
	default:
		h.logger.Error("appointment request failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "request failed")
	}
}

func canView(p auth.Principal, a model.Appointment) bool {
	if p.Role.AtLeast(auth.RoleStaff) {
		return true
	}
	return p.Role == auth.RoleClient && a.ClientID != "" && a.ClientID == p.UserID
}
