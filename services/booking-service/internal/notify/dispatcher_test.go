package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu       sync.Mutex
	events   []Event
	failures int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("temporary")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func sampleAppointment() model.Appointment {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return model.Appointment{
		ID: "appt-1", TenantID: "salon-1", StaffID: "st-1", ServiceID: "svc-1", LocationID: "loc-1",
		ClientName: "Ana", ClientEmail: "ana@example.com", Start: start, End: start.Add(30 * time.Minute),
		Status: model.StatusConfirmed,
	}
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := &recordingSink{failures: 1}
	d := NewDispatcher(discardLogger(), Config{QueueSize: 8, Workers: 1, MaxTries: 3}, sink)

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(context.Background(), NewEvent(EventAppointmentBooked, sampleAppointment())); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if got := sink.count(); got != 3 {
		t.Fatalf("expected 3 delivered events after drain, got %d", got)
	}
	if err := d.Dispatch(context.Background(), Event{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Run, got %v", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(discardLogger(), Config{QueueSize: 1, Workers: 1})
	if err := d.Dispatch(context.Background(), Event{}); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if err := d.Dispatch(context.Background(), Event{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaSinkMessage(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}
	ev := NewEvent(EventAppointmentBooked, sampleAppointment())
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "appt-1" {
		t.Fatalf("expected key appt-1, got %q", msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != ev.EventID || meta.EventType != EventAppointmentBooked {
		t.Fatalf("unexpected meta %+v", meta)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.TenantID != "salon-1" || decoded.ClientEmail != "ana@example.com" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}
