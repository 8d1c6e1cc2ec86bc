// Package slots answers read-only availability questions: free slots for a
// day and the closest alternatives to a rejected request.
package slots

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type Finder struct {
	store storage.Store
	step  time.Duration
	now   func() time.Time
}

func NewFinder(store storage.Store, step time.Duration) *Finder {
	if step <= 0 {
		step = 15 * time.Minute
	}
	return &Finder{store: store, step: step, now: time.Now}
}

type Query struct {
	TenantID   model.TenantID
	ServiceID  string
	LocationID string
	// StaffID empty means every qualified staff member.
	StaffID string
	// Date is a calendar date, YYYY-MM-DD, in the location's time zone.
	Date string
}

var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

// Free lists bookable slots for the query's date, ordered by start then staff.
func (f *Finder) Free(ctx context.Context, q Query) ([]availability.Slot, error) {
	return f.free(ctx, q, func(loc *time.Location) (time.Time, error) {
		day, err := time.ParseInLocation("2006-01-02", q.Date, loc)
		if err != nil {
			return time.Time{}, ErrInvalidDate
		}
		return day, nil
	})
}

// Alternatives returns up to n free slots on the same local day closest to desired.
func (f *Finder) Alternatives(ctx context.Context, q Query, desired time.Time, n int) ([]availability.Slot, error) {
	free, err := f.free(ctx, q, func(*time.Location) (time.Time, error) { return desired, nil })
	if err != nil {
		return nil, err
	}
	return availability.Nearest(desired, free, n), nil
}

func (f *Finder) free(ctx context.Context, q Query, dayIn func(*time.Location) (time.Time, error)) ([]availability.Slot, error) {
	tenant := f.store.Tenant(q.TenantID)
	svc, err := tenant.Service(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	loc, err := tenant.Location(ctx, q.LocationID)
	if err != nil {
		return nil, err
	}
	day, err := dayIn(loc.Loc())
	if err != nil {
		return nil, err
	}
	staff, err := f.staffFor(ctx, tenant, q)
	if err != nil {
		return nil, err
	}

	var out []availability.Slot
	for _, st := range staff {
		rows, err := tenant.Windows(ctx, st, loc.ID)
		if err != nil {
			return nil, err
		}
		windows := availability.ForDate(rows, day, loc.Loc())
		if len(windows) == 0 {
			continue
		}
		span := model.Interval{Start: windows[0].Start, End: windows[len(windows)-1].End}
		busy, err := tenant.Busy(ctx, st, span)
		if err != nil {
			return nil, err
		}
		for _, s := range availability.Slots(windows, svc.Duration, f.step, busy, f.now()) {
			out = append(out, availability.Slot{StaffID: st, Interval: model.Interval{Start: s, End: s.Add(svc.Duration)}})
		}
	}
	sortSlots(out)
	return out, nil
}

func (f *Finder) staffFor(ctx context.Context, tenant storage.Tenant, q Query) ([]string, error) {
	qualified, err := tenant.QualifiedStaff(ctx, q.ServiceID, q.LocationID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, st := range qualified {
		if q.StaffID == "" || st.ID == q.StaffID {
			ids = append(ids, st.ID)
		}
	}
	return ids, nil
}

func sortSlots(s []availability.Slot) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].Start.Equal(s[j].Start) {
			return s[i].Start.Before(s[j].Start)
		}
		return s[i].StaffID < s[j].StaffID
	})
}
