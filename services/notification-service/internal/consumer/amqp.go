package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type AMQPConfig struct {
	URL      string
	Queue    string
	Tag      string
	Prefetch int
}

// AMQPConsumer reads the durable queue booking-service publishes to.
// Failed deliveries are requeued after RedeliverAfter.
type AMQPConsumer struct {
	cfg    AMQPConfig
	proc   *Processor
	logger *slog.Logger
}

func NewAMQPConsumer(cfg AMQPConfig, proc *Processor, logger *slog.Logger) *AMQPConsumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 16
	}
	if cfg.Tag == "" {
		cfg.Tag = "notification-service"
	}
	return &AMQPConsumer{cfg: cfg, proc: proc, logger: logger}
}

// Run reconnects until ctx ends.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Error("amqp consumer stopped, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *AMQPConsumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	c.logger.Info("amqp consumer started", "queue", c.cfg.Queue)
	return c.drain(ctx, deliveries)
}

func (c *AMQPConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *AMQPConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	eventID := d.MessageId
	if v, ok := d.Headers["event_id"].(string); ok && v != "" {
		eventID = v
	}
	ctxMsg := otelx.ExtractMap(ctx, stringHeaders(d.Headers))
	ctxSpan, span := otel.Tracer("amqp").Start(ctxMsg, "amqp.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", c.cfg.Queue),
			attribute.String("messaging.message.id", eventID),
		),
	)
	defer span.End()

	if err := c.proc.Handle(ctxSpan, eventID, d.Body); err != nil {
		span.RecordError(err)
		sleep(ctx, c.proc.cfg.RedeliverAfter)
		if nerr := d.Nack(false, true); nerr != nil {
			c.logger.Error("amqp nack failed", "err", nerr, "event_id", eventID)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error("amqp ack failed", "err", err, "event_id", eventID)
	}
}

func stringHeaders(t amqp.Table) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
