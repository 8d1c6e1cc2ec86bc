// Package memstore is an in-process storage.Store. Per-(tenant, staff)
// mutexes stand in for the Postgres advisory lock, so the booking path has
// the same serialization as production. Used by tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type Store struct {
	// Now is the clock used for created_at, last_booked_at and key expiry.
	Now func() time.Time

	mu        sync.Mutex
	tenants   map[model.TenantID]*tenantData
	events    map[string]struct{}
	exclusive map[int64]bool

	locks sync.Map // string -> *sync.Mutex
}

type tenantData struct {
	services     map[string]model.Service
	locations    map[string]model.Location
	staff        map[string]model.Staff
	offers       []offer
	windows      []model.AvailabilityWindow
	appointments map[string]model.Appointment
	keys         map[string]idemKey
}

type offer struct {
	staffID, serviceID, locationID string
}

type idemKey struct {
	appointmentID string
	createdAt     time.Time
}

func New() *Store {
	return &Store{
		Now:       time.Now,
		tenants:   map[model.TenantID]*tenantData{},
		events:    map[string]struct{}{},
		exclusive: map[int64]bool{},
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Close() {}

func (s *Store) Tenant(id model.TenantID) storage.Tenant {
	return &tenant{s: s, id: id}
}

func (s *Store) Tenants(context.Context) ([]model.TenantID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TenantID, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) RecordProviderEvent(_ context.Context, provider, eventID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := provider + "/" + eventID
	if _, ok := s.events[k]; ok {
		return false, nil
	}
	s.events[k] = struct{}{}
	return true, nil
}

func (s *Store) RunExclusive(ctx context.Context, lockKey int64, fn func(context.Context) error) (bool, error) {
	s.mu.Lock()
	if s.exclusive[lockKey] {
		s.mu.Unlock()
		return false, nil
	}
	s.exclusive[lockKey] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.exclusive, lockKey)
		s.mu.Unlock()
	}()
	return true, fn(ctx)
}

// data returns the tenant's maps, creating them on first use; caller holds mu.
func (s *Store) data(id model.TenantID) *tenantData {
	td := s.tenants[id]
	if td == nil {
		td = &tenantData{
			services:     map[string]model.Service{},
			locations:    map[string]model.Location{},
			staff:        map[string]model.Staff{},
			appointments: map[string]model.Appointment{},
			keys:         map[string]idemKey{},
		}
		s.tenants[id] = td
	}
	return td
}

func (s *Store) lockFor(key string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Seeding helpers.

func (s *Store) AddService(tenantID model.TenantID, svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc.TenantID = tenantID
	s.data(tenantID).services[svc.ID] = svc
}

func (s *Store) AddLocation(tenantID model.TenantID, loc model.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc.TenantID = tenantID
	s.data(tenantID).locations[loc.ID] = loc
}

// AddStaff registers a staff member offering serviceIDs at locationID.
func (s *Store) AddStaff(tenantID model.TenantID, st model.Staff, locationID string, serviceIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.TenantID = tenantID
	td := s.data(tenantID)
	td.staff[st.ID] = st
	for _, svc := range serviceIDs {
		td.offers = append(td.offers, offer{staffID: st.ID, serviceID: svc, locationID: locationID})
	}
}

func (s *Store) AddWindow(tenantID model.TenantID, w model.AvailabilityWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	td := s.data(tenantID)
	td.windows = append(td.windows, w)
}

// ForceInsert stores an appointment without any overlap check.
func (s *Store) ForceInsert(tenantID model.TenantID, appt model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.TenantID = tenantID
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = s.Now()
	}
	s.data(tenantID).appointments[appt.ID] = appt
	return appt
}

type tenant struct {
	s  *Store
	id model.TenantID
}

func (t *tenant) ID() model.TenantID { return t.id }

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", storage.ErrNotFound, kind, id)
}

func (t *tenant) Service(_ context.Context, id string) (model.Service, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	svc, ok := t.s.data(t.id).services[id]
	if !ok {
		return model.Service{}, notFound("service", id)
	}
	return svc, nil
}

func (t *tenant) Location(_ context.Context, id string) (model.Location, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	loc, ok := t.s.data(t.id).locations[id]
	if !ok {
		return model.Location{}, notFound("location", id)
	}
	return loc, nil
}

func (t *tenant) Staff(_ context.Context, id string) (model.Staff, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	st, ok := t.s.data(t.id).staff[id]
	if !ok {
		return model.Staff{}, notFound("staff", id)
	}
	return st, nil
}

func (t *tenant) QualifiedStaff(_ context.Context, serviceID, locationID string) ([]model.Staff, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	td := t.s.data(t.id)
	seen := map[string]bool{}
	var out []model.Staff
	for _, o := range td.offers {
		if o.serviceID != serviceID || o.locationID != locationID || seen[o.staffID] {
			continue
		}
		st, ok := td.staff[o.staffID]
		if !ok || !st.Active {
			continue
		}
		seen[o.staffID] = true
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastBookedAt, out[j].LastBookedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tenant) Windows(_ context.Context, staffID, locationID string) ([]model.AvailabilityWindow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []model.AvailabilityWindow
	for _, w := range t.s.data(t.id).windows {
		if w.StaffID == staffID && w.LocationID == locationID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (t *tenant) Busy(_ context.Context, staffID string, iv model.Interval) ([]model.Interval, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.busyLocked(staffID, iv), nil
}

func (t *tenant) busyLocked(staffID string, iv model.Interval) []model.Interval {
	var out []model.Interval
	for _, a := range t.s.data(t.id).appointments {
		if a.StaffID == staffID && a.Status.Active() && a.Interval().Overlaps(iv) {
			out = append(out, a.Interval())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (t *tenant) Book(ctx context.Context, p storage.BookParams) (storage.BookOutcome, error) {
	if err := ctx.Err(); err != nil {
		return storage.BookOutcome{}, err
	}
	staffLock := t.s.lockFor("staff:" + string(t.id) + ":" + p.Appointment.StaffID)
	staffLock.Lock()
	defer staffLock.Unlock()

	if p.IdempotencyKey != "" {
		keyLock := t.s.lockFor("key:" + string(t.id) + ":" + p.IdempotencyKey)
		keyLock.Lock()
		defer keyLock.Unlock()
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	td := t.s.data(t.id)
	now := t.s.Now()

	if p.IdempotencyKey != "" {
		if k, ok := td.keys[p.IdempotencyKey]; ok && now.Sub(k.createdAt) < p.IdempotencyTTL && k.appointmentID != "" {
			return storage.BookOutcome{Appointment: td.appointments[k.appointmentID], Replayed: true}, nil
		}
	}

	appt := p.Appointment
	if len(t.busyLocked(appt.StaffID, appt.Interval())) > 0 {
		return storage.BookOutcome{Conflict: true}, nil
	}

	appt.ID = uuid.NewString()
	appt.TenantID = t.id
	appt.IdempotencyKey = p.IdempotencyKey
	appt.CreatedAt = now
	td.appointments[appt.ID] = appt

	if st, ok := td.staff[appt.StaffID]; ok {
		booked := now
		st.LastBookedAt = &booked
		td.staff[appt.StaffID] = st
	}
	if p.IdempotencyKey != "" {
		td.keys[p.IdempotencyKey] = idemKey{appointmentID: appt.ID, createdAt: now}
	}
	return storage.BookOutcome{Appointment: appt}, nil
}

func (t *tenant) IdempotentAppointment(_ context.Context, key string, ttl time.Duration) (model.Appointment, bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	td := t.s.data(t.id)
	k, ok := td.keys[key]
	if !ok || k.appointmentID == "" || t.s.Now().Sub(k.createdAt) >= ttl {
		return model.Appointment{}, false, nil
	}
	appt, ok := td.appointments[k.appointmentID]
	return appt, ok, nil
}

func (t *tenant) Appointment(_ context.Context, id string) (model.Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	appt, ok := t.s.data(t.id).appointments[id]
	if !ok {
		return model.Appointment{}, notFound("appointment", id)
	}
	return appt, nil
}

func (t *tenant) Appointments(_ context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []model.Appointment
	for _, a := range t.s.data(t.id).appointments {
		switch {
		case f.StaffID != "" && a.StaffID != f.StaffID,
			f.ClientID != "" && a.ClientID != f.ClientID,
			f.Status != "" && a.Status != f.Status,
			!f.From.IsZero() && !a.End.After(f.From),
			!f.To.IsZero() && !a.Start.Before(f.To):
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	limit := f.EffectiveLimit()
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tenant) UpdateAppointment(_ context.Context, id string, fn func(*model.Appointment) error) (model.Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	td := t.s.data(t.id)
	appt, ok := td.appointments[id]
	if !ok {
		return model.Appointment{}, notFound("appointment", id)
	}
	if err := fn(&appt); err != nil {
		return model.Appointment{}, err
	}
	if appt.ID != id || appt.TenantID != t.id {
		return model.Appointment{}, errors.New("memstore: appointment identity changed")
	}
	td.appointments[id] = appt
	return appt, nil
}

func (t *tenant) Overlaps(context.Context) ([]storage.Overlap, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var active []model.Appointment
	for _, a := range t.s.data(t.id).appointments {
		if a.Status.Active() {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].StaffID != active[j].StaffID {
			return active[i].StaffID < active[j].StaffID
		}
		return strings.Compare(active[i].ID, active[j].ID) < 0
	})
	var out []storage.Overlap
	for i := range active {
		for j := i + 1; j < len(active) && active[j].StaffID == active[i].StaffID; j++ {
			if active[i].Interval().Overlaps(active[j].Interval()) {
				out = append(out, storage.Overlap{StaffID: active[i].StaffID, First: active[i], Second: active[j]})
			}
		}
	}
	return out, nil
}
