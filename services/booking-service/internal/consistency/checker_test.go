package consistency

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage/memstore"
)

var base = time.Date(2030, 3, 11, 9, 0, 0, 0, time.UTC)

func appt(staff string, startMin, endMin int, status model.Status) model.Appointment {
	return model.Appointment{
		StaffID: staff,
		Start:   base.Add(time.Duration(startMin) * time.Minute),
		End:     base.Add(time.Duration(endMin) * time.Minute),
		Status:  status,
	}
}

func TestCheckOnceReportsOnlyActiveOverlaps(t *testing.T) {
	s := memstore.New()
	s.ForceInsert("salon-1", appt("st-1", 0, 60, model.StatusConfirmed))
	s.ForceInsert("salon-1", appt("st-1", 30, 90, model.StatusPending))
	s.ForceInsert("salon-1", appt("st-1", 90, 120, model.StatusConfirmed)) // back-to-back
	s.ForceInsert("salon-1", appt("st-2", 0, 60, model.StatusConfirmed))   // other staff
	s.ForceInsert("salon-2", appt("st-1", 0, 60, model.StatusCancelled))   // inactive
	s.ForceInsert("salon-2", appt("st-1", 0, 60, model.StatusConfirmed))

	var buf bytes.Buffer
	c := NewChecker(s, slog.New(slog.NewJSONHandler(&buf, nil)), Config{})
	incidents, err := c.CheckOnce(context.Background())
	if err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	if len(incidents) != 1 {
		t.Fatalf("expected 1 incident, got %+v", incidents)
	}
	if incidents[0].TenantID != "salon-1" || incidents[0].StaffID != "st-1" {
		t.Fatalf("unexpected incident %+v", incidents[0])
	}
	if !strings.Contains(buf.String(), `"msg":"data integrity incident"`) || !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Fatalf("expected an ERROR log line, got %s", buf.String())
	}
}

func TestCheckOnceDoesNotMutate(t *testing.T) {
	s := memstore.New()
	a := s.ForceInsert("salon-1", appt("st-1", 0, 60, model.StatusConfirmed))
	b := s.ForceInsert("salon-1", appt("st-1", 30, 90, model.StatusConfirmed))

	c := NewChecker(s, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), Config{})
	for i := 0; i < 2; i++ {
		if _, err := c.CheckOnce(context.Background()); err != nil {
			t.Fatalf("CheckOnce: %v", err)
		}
	}
	for _, id := range []string{a.ID, b.ID} {
		got, err := s.Tenant("salon-1").Appointment(context.Background(), id)
		if err != nil {
			t.Fatalf("Appointment: %v", err)
		}
		if got.Status != model.StatusConfirmed {
			t.Fatalf("appointment %s changed to %s", id, got.Status)
		}
	}
}

func TestRunSkipsWhileAnotherInstanceLeads(t *testing.T) {
	s := memstore.New()
	s.ForceInsert("salon-1", appt("st-1", 0, 60, model.StatusConfirmed))
	s.ForceInsert("salon-1", appt("st-1", 30, 90, model.StatusConfirmed))

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = s.RunExclusive(context.Background(), DefaultLockKey, func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	var buf bytes.Buffer
	c := NewChecker(s, slog.New(slog.NewJSONHandler(&buf, nil)), Config{Interval: time.Hour, RetryLeader: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(release)
	if strings.Contains(buf.String(), "data integrity incident") {
		t.Fatalf("non-leader should not scan, got %s", buf.String())
	}
}
