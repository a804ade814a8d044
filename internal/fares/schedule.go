package fares

import "time"

const localLayout = "2006-01-02T15:04:05"

// Hour bounds for a comfortable two-night trip: leave late morning, fly back
// in the evening.
const (
	OutboundEarliestHour = 7
	OutboundLatestHour   = 13
	InboundEarliestHour  = 15
	InboundLatestHour    = 22
)

// IsDesirable reports whether an itinerary departing at outboundHour and
// returning at inboundHour has a desirable schedule.
func IsDesirable(outboundHour, inboundHour int) bool {
	return outboundHour >= OutboundEarliestHour && outboundHour <= OutboundLatestHour &&
		inboundHour >= InboundEarliestHour && inboundHour <= InboundLatestHour
}

// HourOf extracts the hour of a local timestamp. Missing or unparseable
// values yield 0.
func HourOf(ts string) int {
	t, ok := parseLocal(ts)
	if !ok {
		return 0
	}
	return t.Hour()
}

// ClockOf formats the time-of-day of a local timestamp as "15:04", or "" when
// the value cannot be parsed.
func ClockOf(ts string) string {
	t, ok := parseLocal(ts)
	if !ok {
		return ""
	}
	return t.Format("15:04")
}

func parseLocal(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(localLayout, ts)
	if err != nil {
		// Some responses carry an offset.
		t, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// Desirable applies IsDesirable to an offer's departure timestamps.
func (o Offer) Desirable() bool {
	return IsDesirable(HourOf(o.OutboundDeparture), HourOf(o.InboundDeparture))
}

// SelectOffer picks the cheapest desirable offer, falling back to the
// cheapest offer overall. The first of equally priced offers wins. ok is false
// when offers is empty.
func SelectOffer(offers []Offer) (q Quote, ok bool) {
	if len(offers) == 0 {
		return Quote{}, false
	}

	best, bestDesirable := -1, -1
	for i, o := range offers {
		if best < 0 || o.Price < offers[best].Price {
			best = i
		}
		if o.Desirable() && (bestDesirable < 0 || o.Price < offers[bestDesirable].Price) {
			bestDesirable = i
		}
	}

	if bestDesirable >= 0 {
		return Quote{Offer: offers[bestDesirable], Desirable: true}, true
	}
	return Quote{Offer: offers[best], Desirable: false}, true
}
