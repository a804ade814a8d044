package fares

import (
	"fmt"
	"time"
)

// Origin is the fixed departure airport for every tracked route.
const Origin = "ICN"

// Currency is the currency all quotes are requested in.
const Currency = "KRW"

const dateLayout = "2006-01-02"

// Date is a calendar date that marshals as "2006-01-02".
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in t's location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(dateLayout) }

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date { return Date{d.Time.AddDate(0, 0, n)} }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	t, err := time.Parse(`"`+dateLayout+`"`, string(data))
	if err != nil {
		return fmt.Errorf("parse date %s: %w", data, err)
	}
	*d = Date{t}
	return nil
}

// DateWindow is a Friday-to-Sunday trip.
type DateWindow struct {
	Outbound Date `json:"outbound"`
	Inbound  Date `json:"inbound"`
}

func (w DateWindow) String() string {
	return w.Outbound.String() + "~" + w.Inbound.String()
}

// Offer is one priced itinerary returned by the pricing API. Timestamps are the
// local departure/arrival times as sent by the API ("2006-01-02T15:04:05").
type Offer struct {
	Price             int64
	Currency          string
	Carrier           string
	OutboundDeparture string
	OutboundArrival   string
	InboundDeparture  string
	InboundArrival    string
}

// Quote is the offer selected for a route and window.
type Quote struct {
	Offer
	Desirable bool
}

// Outcome classifies the result of a single fetch.
type Outcome string

const (
	OutcomeQuoted  Outcome = "quoted"
	OutcomeNoQuote Outcome = "no_quote"
	OutcomeFailed  Outcome = "failed"
)

// FetchResult is the structured result of fetching one route and window.
type FetchResult struct {
	Outcome Outcome
	Quote   *Quote
	Err     error
}

// Quoted wraps a selected quote.
func Quoted(q Quote) FetchResult { return FetchResult{Outcome: OutcomeQuoted, Quote: &q} }

// NoQuote reports that the API had no offers.
func NoQuote() FetchResult { return FetchResult{Outcome: OutcomeNoQuote} }

// Failed reports a transport or parse failure.
func Failed(err error) FetchResult { return FetchResult{Outcome: OutcomeFailed, Err: err} }
