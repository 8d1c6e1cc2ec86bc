package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage/memstore"
)

const tenantID model.TenantID = "salon-1"

var day = time.Date(2030, 3, 11, 0, 0, 0, 0, time.UTC) // Monday

func setup() (*Finder, *memstore.Store) {
	s := memstore.New()
	s.AddLocation(tenantID, model.Location{ID: "loc-1", Timezone: "UTC"})
	s.AddService(tenantID, model.Service{ID: "cut", Duration: 30 * time.Minute, Active: true})
	for _, id := range []string{"st-1", "st-2"} {
		s.AddStaff(tenantID, model.Staff{ID: id, Active: true}, "loc-1", "cut")
		s.AddWindow(tenantID, model.AvailabilityWindow{StaffID: id, LocationID: "loc-1", Weekday: time.Monday, Open: 9 * time.Hour, Close: 10 * time.Hour})
	}
	f := NewFinder(s, 30*time.Minute)
	f.now = func() time.Time { return day }
	return f, s
}

func TestFreeExcludesBusy(t *testing.T) {
	f, s := setup()
	s.ForceInsert(tenantID, model.Appointment{StaffID: "st-1", Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute), Status: model.StatusConfirmed})

	got, err := f.Free(context.Background(), Query{TenantID: tenantID, ServiceID: "cut", LocationID: "loc-1", Date: "2030-03-11"})
	if err != nil {
		t.Fatalf("Free: %v", err)
	}
	// st-1: 09:30; st-2: 09:00, 09:30.
	if len(got) != 3 {
		t.Fatalf("expected 3 slots, got %+v", got)
	}
	if got[0].StaffID != "st-2" || got[0].Start.Hour() != 9 || got[0].Start.Minute() != 0 {
		t.Fatalf("unexpected first slot %+v", got[0])
	}
}

func TestAlternativesClosestFirst(t *testing.T) {
	f, s := setup()
	for _, st := range []string{"st-1", "st-2"} {
		s.ForceInsert(tenantID, model.Appointment{StaffID: st, Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute), Status: model.StatusConfirmed})
	}
	alts, err := f.Alternatives(context.Background(), Query{TenantID: tenantID, ServiceID: "cut", LocationID: "loc-1"}, day.Add(9*time.Hour), 1)
	if err != nil {
		t.Fatalf("Alternatives: %v", err)
	}
	if len(alts) != 1 || alts[0].StaffID != "st-1" || alts[0].Start.Minute() != 30 {
		t.Fatalf("expected st-1 at 09:30, got %+v", alts)
	}
}

func TestFreeRejectsBadDate(t *testing.T) {
	f, _ := setup()
	_, err := f.Free(context.Background(), Query{TenantID: tenantID, ServiceID: "cut", LocationID: "loc-1", Date: "11/03/2030"})
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
