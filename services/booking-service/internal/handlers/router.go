package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/auth"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
)

type RouterConfig struct {
	Logger       *slog.Logger
	Verifier     *auth.Verifier
	Booking      *BookingHandler
	Appointments *AppointmentHandler
	Deposits     *DepositHandler
	// Public wraps the unauthenticated booking surface (rate limit, CORS).
	Public         []httpx.Middleware
	BodyLimitBytes int64
	Timeout        time.Duration
}

// NewRouter mounts the versioned API. Health endpoints live on the base mux.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.BodyLimitBytes <= 0 {
		cfg.BodyLimitBytes = 1 << 20
	}
	r := chi.NewRouter()
	r.Use(httpx.WithBodyLimit(cfg.BodyLimitBytes))
	if cfg.Timeout > 0 {
		r.Use(httpx.WithTimeout(cfg.Timeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			for _, m := range cfg.Public {
				r.Use(m)
			}
			r.With(auth.OptionalAuth(cfg.Verifier)).Post("/public/book", cfg.Booking.Book)
			r.Get("/public/slots", cfg.Booking.Slots)
		})

		r.Post("/billing/webhooks/stripe", cfg.Deposits.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(cfg.Verifier))
			r.With(auth.RequireRole(auth.RoleStaff)).Get("/appointments", cfg.Appointments.List)
			r.With(auth.RequireRole(auth.RoleClient)).Route("/appointments/{id}", func(r chi.Router) {
				r.Get("/", cfg.Appointments.Get)
				r.Post("/cancel", cfg.Appointments.Cancel)
				r.Post("/deposit", cfg.Deposits.CreateCheckout)
				r.With(auth.RequireRole(auth.RoleStaff)).Post("/status", cfg.Appointments.UpdateStatus)
			})
		})
	})
	return r
}
