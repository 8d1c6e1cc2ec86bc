package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// Slot is a bookable interval for one staff member.
type Slot struct {
	StaffID string
	model.Interval
}

// Nearest returns up to n slots ordered by distance from desired; equal
// distances prefer the earlier slot, then the lower staff id.
func Nearest(desired time.Time, slots []Slot, n int) []Slot {
	if n <= 0 || len(slots) == 0 {
		return nil
	}
	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := distance(desired, sorted[i].Start), distance(desired, sorted[j].Start)
		if di != dj {
			return di < dj
		}
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].StaffID < sorted[j].StaffID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
