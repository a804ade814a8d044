package fares

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNextWeekends_Properties(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for day := 0; day < 14; day++ {
		today := start.AddDate(0, 0, day)
		for n := 0; n <= 6; n++ {
			ws := NextWeekends(n, today)
			if len(ws) != n {
				t.Fatalf("n=%d today=%s: got %d windows", n, today.Format("2006-01-02"), len(ws))
			}
			for i, w := range ws {
				if w.Outbound.Weekday() != time.Friday {
					t.Errorf("window %d outbound %s is %s", i, w.Outbound, w.Outbound.Weekday())
				}
				if got := w.Outbound.AddDays(2); !got.Equal(w.Inbound.Time) {
					t.Errorf("window %d inbound %s, want %s", i, w.Inbound, got)
				}
				if i == 0 && !w.Outbound.After(NewDate(today).Time) {
					t.Errorf("first outbound %s not after today %s", w.Outbound, today.Format("2006-01-02"))
				}
				if i > 0 && !w.Outbound.After(ws[i-1].Outbound.Time) {
					t.Errorf("window %d not increasing", i)
				}
			}
		}
	}
}

func TestNextWeekends_FridaySkipsToNextWeek(t *testing.T) {
	friday := time.Date(2025, 3, 7, 23, 0, 0, 0, time.UTC)
	ws := NextWeekends(2, friday)
	if ws[0].Outbound.String() != "2025-03-14" || ws[0].Inbound.String() != "2025-03-16" {
		t.Fatalf("unexpected first window: %s", ws[0])
	}
	if ws[1].Outbound.String() != "2025-03-21" {
		t.Fatalf("unexpected second window: %s", ws[1])
	}
}

func TestNextWeekends_UsesLocalCalendarDate(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	// Thursday 23:30 UTC is already Friday in Seoul.
	now := time.Date(2025, 3, 6, 23, 30, 0, 0, time.UTC).In(seoul)
	ws := NextWeekends(1, now)
	if ws[0].Outbound.String() != "2025-03-14" {
		t.Fatalf("got %s, want 2025-03-14", ws[0].Outbound)
	}
}

func TestDateWindow_JSON(t *testing.T) {
	w := NextWeekends(1, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))[0]
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"outbound":"2025-03-14","inbound":"2025-03-16"}` {
		t.Fatalf("unexpected json: %s", b)
	}
	var back DateWindow
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.String() != w.String() {
		t.Fatalf("round trip mismatch: %s vs %s", back, w)
	}
}

func TestIsDesirable(t *testing.T) {
	for out := -1; out <= 24; out++ {
		for in := -1; in <= 24; in++ {
			want := out >= 7 && out <= 13 && in >= 15 && in <= 22
			if got := IsDesirable(out, in); got != want {
				t.Errorf("IsDesirable(%d, %d) = %v, want %v", out, in, got, want)
			}
		}
	}
	if IsDesirable(0, 0) {
		t.Errorf("default hours must never be desirable")
	}
}

func TestHourOf(t *testing.T) {
	cases := map[string]int{
		"2025-03-14T09:55:00":       9,
		"2025-03-16T19:05:00":       19,
		"2025-03-16T22:59:59":       22,
		"2025-03-16T18:30:00+09:00": 18,
		"":                          0,
		"garbage":                   0,
	}
	for in, want := range cases {
		if got := HourOf(in); got != want {
			t.Errorf("HourOf(%q) = %d, want %d", in, got, want)
		}
	}
	if got := ClockOf("2025-03-14T09:55:00"); got != "09:55" {
		t.Errorf("ClockOf = %q", got)
	}
	if got := ClockOf(""); got != "" {
		t.Errorf("ClockOf(empty) = %q", got)
	}
}

func offer(price int64, desirable bool) Offer {
	if desirable {
		return Offer{Price: price, OutboundDeparture: "2025-03-14T09:00:00", InboundDeparture: "2025-03-16T18:00:00"}
	}
	return Offer{Price: price, OutboundDeparture: "2025-03-14T06:00:00", InboundDeparture: "2025-03-16T18:00:00"}
}

func TestSelectOffer_PrefersDesirable(t *testing.T) {
	q, ok := SelectOffer([]Offer{offer(100000, false), offer(120000, true), offer(90000, false)})
	if !ok {
		t.Fatalf("expected a quote")
	}
	if q.Price != 120000 || !q.Desirable {
		t.Fatalf("got %+v, want desirable 120000", q)
	}
}

func TestSelectOffer_FallsBackToGlobalMinimum(t *testing.T) {
	q, ok := SelectOffer([]Offer{offer(100000, false), offer(120000, false), offer(90000, false)})
	if !ok {
		t.Fatalf("expected a quote")
	}
	if q.Price != 90000 || q.Desirable {
		t.Fatalf("got %+v, want non-desirable 90000", q)
	}
}

func TestSelectOffer_TieKeepsFirst(t *testing.T) {
	a := offer(100000, true)
	a.Carrier = "KE"
	b := offer(100000, true)
	b.Carrier = "OZ"
	q, _ := SelectOffer([]Offer{a, b})
	if q.Carrier != "KE" {
		t.Fatalf("tie should keep first offer, got %s", q.Carrier)
	}
}

func TestSelectOffer_Empty(t *testing.T) {
	if _, ok := SelectOffer(nil); ok {
		t.Fatalf("expected no quote for empty offers")
	}
}

func TestDelta(t *testing.T) {
	if got := Delta(100000, nil); got != 0 {
		t.Errorf("Delta with no prior = %d", got)
	}
	prev := int64(120000)
	if got := Delta(100000, &prev); got != -20000 {
		t.Errorf("Delta(100000, 120000) = %d", got)
	}
	prev = 100000
	if got := Delta(120000, &prev); got != 20000 {
		t.Errorf("Delta(120000, 100000) = %d", got)
	}
}

func TestIsDrop_Boundary(t *testing.T) {
	cases := map[int64]bool{
		-10000: false,
		-10001: true,
		-50000: true,
		0:      false,
		-1:     false,
		50000:  false,
	}
	for delta, want := range cases {
		if got := IsDrop(delta); got != want {
			t.Errorf("IsDrop(%d) = %v, want %v", delta, got, want)
		}
	}
}

func TestNewDropEvent(t *testing.T) {
	d, _ := ParseDate("2025-03-14")
	ev := NewDropEvent("NRT", "Tokyo", DateWindow{Outbound: d, Inbound: d.AddDays(2)}, 235000, 250000)
	if ev.Delta != -15000 || ev.Drop != 15000 {
		t.Fatalf("unexpected delta/drop: %+v", ev)
	}
	if ev.DropPercent != 6.0 {
		t.Fatalf("drop percent = %v, want 6.0", ev.DropPercent)
	}
	if ev.DepartureDate != "2025-03-14" || ev.ReturnDate != "2025-03-16" {
		t.Fatalf("unexpected dates: %+v", ev)
	}
}
