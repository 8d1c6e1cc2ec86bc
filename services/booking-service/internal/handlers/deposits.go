package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/auth"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/appointments"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type PaymentFlow interface {
	ConfirmDeposit(ctx context.Context, tenantID model.TenantID, id, paymentRef string) (model.Appointment, bool, error)
	ExpireDeposit(ctx context.Context, tenantID model.TenantID, id string) (model.Appointment, bool, error)
}

type DepositConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type DepositHandler struct {
	store    storage.Store
	payments PaymentFlow
	logger   *slog.Logger
	cfg      DepositConfig
	checkout func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewDepositHandler(store storage.Store, payments PaymentFlow, logger *slog.Logger, cfg DepositConfig) *DepositHandler {
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		stripe.Key = key
	}
	return &DepositHandler{
		store:    store,
		payments: payments,
		logger:   logger,
		cfg:      cfg,
		checkout: checkoutsession.New,
	}
}

type depositResponse struct {
	AppointmentID string `json:"appointment_id"`
	SessionID     string `json:"session_id"`
	CheckoutURL   string `json:"checkout_url"`
}

// CreateCheckout handles POST /api/v1/appointments/{id}/deposit.
func (h *DepositHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.cfg.SecretKey) == "" {
		writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "deposits are not configured")
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	tenant := h.store.Tenant(model.TenantID(p.BusinessID))

	appt, err := tenant.Appointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil || !canView(p, appt) {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.Error("deposit lookup failed", "err", err)
			writeError(w, r, http.StatusInternalServerError, CodeInternal, "request failed")
			return
		}
		writeError(w, r, http.StatusNotFound, CodeNotFound, "appointment not found")
		return
	}
	if appt.Status != model.StatusPending {
		writeError(w, r, http.StatusConflict, CodeConflict, "appointment is not awaiting a deposit")
		return
	}
	svc, err := tenant.Service(r.Context(), appt.ServiceID)
	if err != nil {
		h.logger.Error("deposit service lookup failed", "err", err, "appointment_id", appt.ID)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "request failed")
		return
	}
	if !svc.RequiresDeposit() {
		writeError(w, r, http.StatusConflict, CodeConflict, "service does not take a deposit")
		return
	}

	currency := strings.ToLower(strings.TrimSpace(svc.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(h.cfg.SuccessURL),
		CancelURL:         stripe.String(h.cfg.CancelURL),
		ClientReferenceID: stripe.String(appt.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(svc.DepositCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Deposit: " + svc.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"appointment_id": appt.ID,
			"business_id":    string(appt.TenantID),
		},
	}
	if appt.ClientEmail != "" {
		params.CustomerEmail = stripe.String(appt.ClientEmail)
	}
	params.IdempotencyKey = stripe.String("deposit:" + appt.ID)

	sess, err := h.checkout(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err, "appointment_id", appt.ID)
		writeError(w, r, http.StatusBadGateway, CodePaymentProvider, "failed to create checkout session")
		return
	}
	h.logger.Info("deposit checkout created", "business_id", appt.TenantID, "appointment_id", appt.ID, "session_id", sess.ID)
	writeJSON(w, r, http.StatusCreated, depositResponse{AppointmentID: appt.ID, SessionID: sess.ID, CheckoutURL: sess.URL})
}

// StripeWebhook handles POST /api/v1/billing/webhooks/stripe. The signature
// is the authentication.
func (h *DepositHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.cfg.WebhookSecret) == "" {
		writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	switch evtType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		if err := h.applySession(r.Context(), evtType, session); err != nil {
			h.logger.Error("stripe: applying checkout session failed", "err", err, "session_id", session.ID)
			writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to apply event")
			return
		}
	}

	// Recorded after applying, so a failed apply is retried by Stripe.
	fresh, err := h.store.RecordProviderEvent(r.Context(), "stripe", evt.ID, evtType)
	if err != nil {
		h.logger.Error("failed to record provider event", "err", err, "provider_event_id", evt.ID)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "failed to record provider event")
		return
	}
	if !fresh {
		h.logger.Info("billing provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)
		writeJSON(w, r, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *DepositHandler) applySession(ctx context.Context, evtType string, session stripe.CheckoutSession) error {
	apptID := strings.TrimSpace(session.Metadata["appointment_id"])
	tenantID := model.TenantID(strings.TrimSpace(session.Metadata["business_id"]))
	if apptID == "" || tenantID == "" {
		h.logger.Warn("stripe: missing metadata on checkout session (appointment_id/business_id)", "session_id", session.ID)
		return nil
	}

	var err error
	switch evtType {
	case "checkout.session.expired":
		_, _, err = h.payments.ExpireDeposit(ctx, tenantID, apptID)
	default:
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			h.logger.Info("stripe: checkout completed without payment yet", "session_id", session.ID)
			return nil
		}
		_, _, err = h.payments.ConfirmDeposit(ctx, tenantID, apptID, session.ID)
	}
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, appointments.ErrIllegalTransition):
		h.logger.Warn("stripe: checkout session does not match an open appointment",
			"err", err, "business_id", tenantID, "appointment_id", apptID)
		return nil
	default:
		return err
	}
}
