package notify

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes every event type to one topic, keyed by appointment id.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers, topic string) *KafkaSink {
	return &KafkaSink{writer: kafkax.NewWriter(brokers, topic)}
}

func (*KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafkax.NewMessage(ctx, ev.AppointmentID, kafkax.EventMeta{EventID: ev.EventID, EventType: ev.EventType}, body)
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error {
	if c, ok := s.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
