package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/storage"
)

type fakeEmail struct {
	sent []email.Message
	err  error
}

func (f *fakeEmail) Send(_ context.Context, m email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakeSMS struct {
	to, body []string
}

func (f *fakeSMS) Send(_ context.Context, to, body string) error {
	f.to = append(f.to, to)
	f.body = append(f.body, body)
	return nil
}

func (f *fakeSMS) ProviderID() string { return "sms-fake" }

type fakeRecorder struct {
	rows []storage.Notification
	err  error
}

func (f *fakeRecorder) Insert(_ context.Context, n storage.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, n)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleEvent(eventType string) Event {
	return Event{
		EventID:       "evt-1",
		EventType:     eventType,
		BusinessID:    "biz-1",
		AppointmentID: "appt-1",
		ClientName:    "Ana",
		ClientEmail:   "ana@example.com",
		ClientPhone:   "+15550100",
		StartTime:     time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC),
		Status:        "confirmed",
	}
}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"event_type":"booking.appointment.cancelled.v1","business_id":"b","appointment_id":"a","start_time":"2030-03-11T09:00:00Z","reason":"sick"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Reason != "sick" || ev.BusinessID != "b" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := Decode([]byte(`{"event_type":"billing.paid"}`)); !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent, got %v", err)
	}
	if _, err := Decode([]byte(`{"event_type":"booking.appointment.booked.v1"}`)); err == nil {
		t.Fatal("expected missing field error")
	}
	if _, err := Decode([]byte(`{`)); err == nil {
		t.Fatal("expected json error")
	}
}

func TestRenderPerEventType(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	booked := Render(sampleEvent(EventBooked), loc)
	if booked.Subject != "Your appointment is booked" || !strings.Contains(booked.Body, "Mon Mar 11, 04:00 EST") {
		t.Fatalf("unexpected booked message %+v", booked)
	}

	pending := sampleEvent(EventBooked)
	pending.Status = "pending"
	if m := Render(pending, loc); !strings.Contains(m.Body, "deposit") {
		t.Fatalf("pending booking should mention deposit: %+v", m)
	}

	cancelled := sampleEvent(EventCancelled)
	cancelled.Reason = "deposit expired"
	m := Render(cancelled, nil)
	if !strings.Contains(m.Body, "Reason: deposit expired.") || !strings.Contains(m.Short, "deposit expired") {
		t.Fatalf("cancellation should carry reason: %+v", m)
	}

	anon := sampleEvent(EventConfirmed)
	anon.ClientName = " "
	if m := Render(anon, nil); !strings.HasPrefix(m.Body, "Hi there,") {
		t.Fatalf("unexpected greeting %q", m.Body)
	}
}

func TestProcessorSendsEveryChannel(t *testing.T) {
	em, sm, rec := &fakeEmail{}, &fakeSMS{}, &fakeRecorder{}
	p := NewProcessor(em, sm, rec, discardLogger(), time.UTC)

	if err := p.Process(context.Background(), sampleEvent(EventConfirmed)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(em.sent) != 1 || em.sent[0].To != "ana@example.com" {
		t.Fatalf("unexpected email %+v", em.sent)
	}
	if len(sm.to) != 1 || sm.to[0] != "+15550100" {
		t.Fatalf("unexpected sms %+v", sm.to)
	}
	if len(rec.rows) != 2 || rec.rows[0].Channel != "email" || rec.rows[1].Provider != "sms-fake" {
		t.Fatalf("unexpected rows %+v", rec.rows)
	}
	for _, r := range rec.rows {
		if r.Status != storage.StatusSent || r.EventID != "evt-1" {
			t.Fatalf("unexpected row %+v", r)
		}
	}
}

func TestProcessorRecordsFailures(t *testing.T) {
	em, rec := &fakeEmail{err: errors.New("smtp down")}, &fakeRecorder{}
	p := NewProcessor(em, &fakeSMS{}, rec, discardLogger(), time.UTC)
	p.FailSuffix = "+15550100"

	if err := p.Process(context.Background(), sampleEvent(EventBooked)); err != nil {
		t.Fatalf("send failures should not surface: %v", err)
	}
	if len(rec.rows) != 2 {
		t.Fatalf("expected two rows, got %+v", rec.rows)
	}
	if rec.rows[0].Status != storage.StatusFailed || rec.rows[0].Error != "smtp down" {
		t.Fatalf("unexpected email row %+v", rec.rows[0])
	}
	if rec.rows[1].Status != storage.StatusFailed || rec.rows[1].Error != "simulated failure" {
		t.Fatalf("unexpected sms row %+v", rec.rows[1])
	}
}

func TestProcessorSurfacesRecordError(t *testing.T) {
	ev := sampleEvent(EventBooked)
	ev.ClientPhone = ""
	p := NewProcessor(&fakeEmail{}, &fakeSMS{}, &fakeRecorder{err: errors.New("db")}, discardLogger(), time.UTC)
	if err := p.Process(context.Background(), ev); err == nil {
		t.Fatal("expected error")
	}
}
