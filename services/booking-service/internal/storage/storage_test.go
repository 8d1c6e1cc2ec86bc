package storage

import "testing"

func TestEffectiveLimit(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{0, 50},
		{-3, 50},
		{10, 10},
		{500, 500},
		{501, 500},
		{10000, 500},
	} {
		if got := (AppointmentFilter{Limit: tc.in}).EffectiveLimit(); got != tc.want {
			t.Fatalf("limit %d: got %d, want %d", tc.in, got, tc.want)
		}
	}
}
