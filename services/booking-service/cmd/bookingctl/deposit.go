package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79/webhook"
)

func simulateDepositCmd() *cobra.Command {
	var (
		baseURL     string
		eventType   string
		business    string
		appointment string
		secret      string
	)
	cmd := &cobra.Command{
		Use:   "simulate-deposit",
		Short: "Send a signed Stripe checkout event for an appointment",
		Long: `Builds a checkout.session.completed (or .expired) event carrying the
appointment metadata, signs it with the webhook secret and posts it to the
booking service, the same way Stripe would.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("--secret or STRIPE_WEBHOOK_SECRET is required")
			}
			now := time.Now().UTC()
			payload, err := buildCheckoutEvent(fmt.Sprintf("evt_test_%d", now.UnixNano()), eventType, now, business, appointment)
			if err != nil {
				return err
			}
			signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
				Payload:   payload,
				Secret:    secret,
				Timestamp: now,
				Scheme:    "v1",
			})

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				strings.TrimRight(baseURL, "/")+"/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Stripe-Signature", signed.Header)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "status=%d\n", resp.StatusCode)
			if resp.StatusCode >= 300 {
				return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
	cmd.Flags().StringVar(&eventType, "type", "checkout.session.completed", "checkout.session.completed or checkout.session.expired")
	cmd.Flags().StringVar(&business, "business-id", "", "business_id metadata")
	cmd.Flags().StringVar(&appointment, "appointment-id", "", "appointment_id metadata")
	cmd.Flags().StringVar(&secret, "secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "webhook signing secret (whsec_...)")
	_ = cmd.MarkFlagRequired("business-id")
	_ = cmd.MarkFlagRequired("appointment-id")
	return cmd
}

func buildCheckoutEvent(eventID, eventType string, t time.Time, businessID, appointmentID string) ([]byte, error) {
	paymentStatus := "paid"
	switch eventType {
	case "checkout.session.completed":
	case "checkout.session.expired":
		paymentStatus = "unpaid"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": "2020-08-27",
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_test_" + appointmentID,
				"object":         "checkout.session",
				"mode":           "payment",
				"payment_status": paymentStatus,
				"metadata": map[string]any{
					"appointment_id": appointmentID,
					"business_id":    businessID,
				},
			},
		},
	})
}
