package fares

import "math"

// DropThreshold is the absolute price decrease, in KRW, that must be exceeded
// before a drop alert fires.
const DropThreshold int64 = 10000

// Delta returns newPrice - *prev, or 0 when there is no prior sample.
func Delta(newPrice int64, prev *int64) int64 {
	if prev == nil {
		return 0
	}
	return newPrice - *prev
}

// IsDrop reports whether delta is a drop large enough to alert on.
func IsDrop(delta int64) bool {
	return delta < -DropThreshold
}

// DropEvent describes an alertable price decrease for one route and outbound date.
type DropEvent struct {
	RouteCode     string  `json:"code"`
	City          string  `json:"city"`
	Price         int64   `json:"price"`
	PreviousPrice int64   `json:"previous_price"`
	Delta         int64   `json:"delta"`
	Drop          int64   `json:"drop"`
	DropPercent   float64 `json:"drop_percent"`
	DepartureDate string  `json:"date"`
	ReturnDate    string  `json:"return_date"`
}

// NewDropEvent builds the event for a price that fell from prev to price.
func NewDropEvent(code, city string, window DateWindow, price, prev int64) DropEvent {
	delta := price - prev
	drop := -delta
	pct := 0.0
	if prev > 0 {
		pct = math.Round(float64(drop)/float64(prev)*1000) / 10
	}
	return DropEvent{
		RouteCode:     code,
		City:          city,
		Price:         price,
		PreviousPrice: prev,
		Delta:         delta,
		Drop:          drop,
		DropPercent:   pct,
		DepartureDate: window.Outbound.String(),
		ReturnDate:    window.Inbound.String(),
	}
}
