package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingPublisher struct {
	exchange, key string
	msgs          []amqp.Publishing
	err           error
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.exchange, p.key = exchange, key
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestAMQPSinkPublishesPersistentMessage(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewAMQPSink("amqp://127.0.0.1:1/", "notifications")
	s.ch = pub

	ev := Event{EventID: "ev-1", EventType: EventAppointmentBooked, AppointmentID: "appt-1"}
	if err := s.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	if pub.exchange != "" || pub.key != "notifications" {
		t.Fatalf("expected default exchange and queue key, got %q %q", pub.exchange, pub.key)
	}
	msg := pub.msgs[0]
	if msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("expected persistent delivery, got %d", msg.DeliveryMode)
	}
	if msg.MessageId != "ev-1" || msg.Type != EventAppointmentBooked {
		t.Fatalf("unexpected id/type: %q %q", msg.MessageId, msg.Type)
	}
	if msg.Headers["event_id"] != "ev-1" || msg.Headers["event_type"] != EventAppointmentBooked {
		t.Fatalf("unexpected headers: %v", msg.Headers)
	}
	var got Event
	if err := json.Unmarshal(msg.Body, &got); err != nil || got.AppointmentID != "appt-1" {
		t.Fatalf("body: %+v %v", got, err)
	}
}

func TestAMQPSinkResetsChannelOnPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("channel closed")}
	s := NewAMQPSink("amqp://127.0.0.1:1/", "notifications")
	s.ch = pub

	err := s.Send(context.Background(), Event{EventID: "ev-2", EventType: EventAppointmentCancelled})
	if err == nil || !strings.Contains(err.Error(), "amqp publish") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if s.ch != nil || s.conn != nil {
		t.Fatal("failed publish should drop the channel")
	}

	// Next send redials; nothing listens on port 1.
	err = s.Send(context.Background(), Event{EventID: "ev-3", EventType: EventAppointmentCancelled})
	if err == nil || !strings.Contains(err.Error(), "amqp dial") {
		t.Fatalf("expected redial error, got %v", err)
	}
}
