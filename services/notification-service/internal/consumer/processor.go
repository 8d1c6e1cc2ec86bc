// Package consumer feeds appointment events from Kafka or RabbitMQ through
// inbox dedup into a handler.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/delivery"
)

type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Handler func(ctx context.Context, ev delivery.Event) error

type Config struct {
	MaxTries       uint
	InitialBackoff time.Duration
	// RedeliverAfter is how long a transport waits before handing a failed
	// message back.
	RedeliverAfter time.Duration
}

// Processor is the transport-independent part of consumption. Handle
// returns an error only when the message should be delivered again.
type Processor struct {
	inbox   Inbox
	handler Handler
	logger  *slog.Logger
	cfg     Config
}

func NewProcessor(inbox Inbox, handler Handler, logger *slog.Logger, cfg Config) *Processor {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.RedeliverAfter <= 0 {
		cfg.RedeliverAfter = 5 * time.Second
	}
	return &Processor{inbox: inbox, handler: handler, logger: logger, cfg: cfg}
}

func (p *Processor) Handle(ctx context.Context, eventID string, body []byte) error {
	ev, err := delivery.Decode(body)
	if err != nil {
		p.logger.Error("dropping undecodable event", "err", err, "event_id", eventID)
		return nil
	}
	if eventID == "" {
		eventID = ev.EventID
	}
	if eventID == "" {
		p.logger.Error("dropping event without id", "appointment_id", ev.AppointmentID)
		return nil
	}

	fresh, err := p.inbox.Record(ctx, eventID, ev.EventType)
	if err != nil {
		return err
	}
	if !fresh {
		p.logger.Info("duplicate event ignored", "event_id", eventID, "event_type", ev.EventType)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.handler(ctx, ev)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.cfg.MaxTries),
	)
	if err == nil {
		return nil
	}

	p.logger.Error("handler error", "err", err, "event_id", eventID, "event_type", ev.EventType)
	if ferr := p.inbox.Forget(context.WithoutCancel(ctx), eventID); ferr != nil {
		err = errors.Join(err, ferr)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
