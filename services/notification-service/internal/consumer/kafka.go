package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers string
	GroupID string
	Topic   string
}

func NewKafkaReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// KafkaConsumer commits a message only after it was handled or dropped. A
// message that keeps failing blocks its partition until it succeeds.
type KafkaConsumer struct {
	reader Reader
	proc   *Processor
	logger *slog.Logger
}

func NewKafkaConsumer(reader Reader, proc *Processor, logger *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, proc: proc, logger: logger}
}

func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if !c.handle(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "offset", msg.Offset)
		}
	}
}

// handle returns false if ctx ended before the message was processed.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	meta := kafkax.ExtractEventMeta(msg)
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	for {
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
				attribute.String("messaging.message.id", meta.EventID),
			),
		)
		err := c.proc.Handle(ctxSpan, meta.EventID, msg.Value)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if err == nil {
			return true
		}
		if ctx.Err() != nil || !sleep(ctx, c.proc.cfg.RedeliverAfter) {
			return false
		}
	}
}
