package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

const dateLayout = "2006-01-02"

// ForDate resolves a staff member's rows into concrete intervals for the
// calendar date of day in loc. Date-specific rows replace weekday rows.
func ForDate(rows []model.AvailabilityWindow, day time.Time, loc *time.Location) []model.Interval {
	if loc == nil {
		loc = time.UTC
	}
	day = day.In(loc)
	key := day.Format(dateLayout)

	var selected []model.AvailabilityWindow
	for _, r := range rows {
		if r.Date == key {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		for _, r := range rows {
			if r.Date == "" && r.Weekday == day.Weekday() {
				selected = append(selected, r)
			}
		}
	}

	y, m, d := day.Date()
	var out []model.Interval
	for _, r := range selected {
		if r.Closed || r.Close <= r.Open {
			continue
		}
		out = append(out, model.Interval{
			Start: clock(y, m, d, r.Open, loc),
			End:   clock(y, m, d, r.Close, loc),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Within reports whether iv fits entirely inside one window.
func Within(windows []model.Interval, iv model.Interval) bool {
	for _, w := range windows {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}

// clock builds wall-clock time so DST days keep 09:00 meaning 09:00.
func clock(y int, m time.Month, d int, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	min := int((offset % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, min, 0, 0, loc)
}
