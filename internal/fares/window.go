package fares

import "time"

// NextWeekends returns n Friday-to-Sunday windows. The first outbound date is
// the soonest Friday strictly after today; each following one is a week later.
func NextWeekends(n int, today time.Time) []DateWindow {
	if n <= 0 {
		return []DateWindow{}
	}

	day := NewDate(today)
	ahead := (int(time.Friday) - int(day.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	friday := day.AddDays(ahead)

	out := make([]DateWindow, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, DateWindow{Outbound: friday, Inbound: friday.AddDays(2)})
		friday = friday.AddDays(7)
	}
	return out
}
