package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/storage"
)

var errSimulated = errors.New("simulated failure")

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Processor struct {
	email    email.Sender
	sms      sms.Sender
	recorder Recorder
	logger   *slog.Logger
	loc      *time.Location
	// FailSuffix marks recipients whose sends are simulated as failed.
	FailSuffix string
}

func NewProcessor(emailSender email.Sender, smsSender sms.Sender, recorder Recorder, logger *slog.Logger, loc *time.Location) *Processor {
	return &Processor{email: emailSender, sms: smsSender, recorder: recorder, logger: logger, loc: loc}
}

// Process sends the event on every channel the client gave contact details
// for and records each attempt. Send failures are recorded, not returned;
// only a failure to record is an error.
func (p *Processor) Process(ctx context.Context, ev Event) error {
	msg := Render(ev, p.loc)

	if to := strings.TrimSpace(ev.ClientEmail); to != "" && p.email != nil {
		err := p.fail(to)
		if err == nil {
			err = p.email.Send(ctx, email.Message{To: to, Subject: msg.Subject, Body: msg.Body})
		}
		if err := p.record(ctx, ev, "email", to, "smtp", err); err != nil {
			return err
		}
	}
	if to := strings.TrimSpace(ev.ClientPhone); to != "" && p.sms != nil {
		err := p.fail(to)
		if err == nil {
			err = p.sms.Send(ctx, to, msg.Short)
		}
		if err := p.record(ctx, ev, "sms", to, p.sms.ProviderID(), err); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) fail(recipient string) error {
	if p.FailSuffix != "" && strings.HasSuffix(recipient, p.FailSuffix) {
		return errSimulated
	}
	return nil
}

func (p *Processor) record(ctx context.Context, ev Event, channel, recipient, provider string, sendErr error) error {
	n := storage.Notification{
		EventID:       ev.EventID,
		EventType:     ev.EventType,
		AppointmentID: ev.AppointmentID,
		BusinessID:    ev.BusinessID,
		Channel:       channel,
		Recipient:     recipient,
		Provider:      provider,
		Status:        storage.StatusSent,
	}
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
		p.logger.Error("notification send failed", "err", sendErr, "channel", channel, "appointment_id", ev.AppointmentID)
	}
	if err := p.recorder.Insert(ctx, n); err != nil {
		p.logger.Error("failed to persist notification", "err", err, "appointment_id", ev.AppointmentID)
		return err
	}
	p.logger.Info("notification processed",
		"event_type", ev.EventType,
		"appointment_id", ev.AppointmentID,
		"channel", channel,
		"status", n.Status,
	)
	return nil
}
