package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bher20/flightticker/internal/fares"
	"github.com/bher20/flightticker/internal/metrics"
	"github.com/bher20/flightticker/internal/notification"
	"github.com/bher20/flightticker/internal/routes"
	"github.com/bher20/flightticker/internal/storage"
)

// ErrCredential is returned by Run when no access token could be obtained.
// Nothing is collected in that case.
var ErrCredential = errors.New("collector: pricing api credentials rejected")

// Default daily window for normal-tier routes, in hours of the collector's
// timezone. Start is inclusive, end exclusive.
const (
	DailyWindowStart = 9
	DailyWindowEnd   = 15
)

// IsDailyWindow reports whether normal-tier routes are collected at hour.
func IsDailyWindow(hour int) bool {
	return hour >= DailyWindowStart && hour < DailyWindowEnd
}

// QuoteSource fetches the selected quote for one route and window.
type QuoteSource interface {
	Token(ctx context.Context) (string, error)
	Fetch(ctx context.Context, token, destination string, window fares.DateWindow) fares.FetchResult
}

// Notifier delivers drop events.
type Notifier interface {
	Dispatch(ctx context.Context, ev fares.DropEvent) notification.DispatchReport
}

type Config struct {
	Weekends   int
	FetchDelay time.Duration
	Location   *time.Location
	// Hours [WindowStart, WindowEnd) in Location during which normal-tier
	// routes are collected. Zero values use the package defaults.
	WindowStart int
	WindowEnd   int
}

// Collector runs one collection pass over every eligible route and window.
type Collector struct {
	cfg      Config
	routes   *routes.Registry
	source   QuoteSource
	store    storage.Storage
	notifier Notifier

	// Now and Sleep are replaceable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, reg *routes.Registry, source QuoteSource, store storage.Storage, notifier Notifier) *Collector {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WindowStart == 0 && cfg.WindowEnd == 0 {
		cfg.WindowStart, cfg.WindowEnd = DailyWindowStart, DailyWindowEnd
	}
	return &Collector{
		cfg:      cfg,
		routes:   reg,
		source:   source,
		store:    store,
		notifier: notifier,
		Now:      time.Now,
		Sleep:    sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// InDailyWindow applies the configured daily window to hour.
func (c *Collector) InDailyWindow(hour int) bool {
	return hour >= c.cfg.WindowStart && hour < c.cfg.WindowEnd
}

// PairResult records what happened to one (route, window) pair.
type PairResult struct {
	Route   string            `json:"route"`
	Window  fares.DateWindow  `json:"window"`
	Outcome fares.Outcome     `json:"outcome"`
	Price   int64             `json:"price,omitempty"`
	Delta   int64             `json:"delta,omitempty"`
	Err     error             `json:"-"`
	Alerted bool              `json:"alerted,omitempty"`
	Sinks   map[string]string `json:"sinks,omitempty"`
}

// RunReport summarises a collection pass.
type RunReport struct {
	ID          string             `json:"id"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	DailyWindow bool               `json:"daily_window"`
	Windows     []fares.DateWindow `json:"windows"`
	Pairs       []PairResult       `json:"pairs"`
}

// Count returns how many pairs ended with outcome o. Pairs whose persistence
// failed after a quote are counted as failed.
func (r *RunReport) Count(o fares.Outcome) int {
	n := 0
	for _, p := range r.Pairs {
		got := p.Outcome
		if p.Err != nil {
			got = fares.OutcomeFailed
		}
		if got == o {
			n++
		}
	}
	return n
}

// Alerts returns the number of drop events dispatched.
func (r *RunReport) Alerts() int {
	n := 0
	for _, p := range r.Pairs {
		if p.Alerted {
			n++
		}
	}
	return n
}

// Run performs one pass. Per-pair failures are logged and recorded in the
// report; only credential failure and context cancellation abort the pass.
func (c *Collector) Run(ctx context.Context) (*RunReport, error) {
	now := c.Now().In(c.cfg.Location)
	rep := &RunReport{
		ID:          uuid.NewString(),
		StartedAt:   now,
		DailyWindow: c.InDailyWindow(now.Hour()),
		Windows:     fares.NextWeekends(c.cfg.Weekends, now),
	}

	token, err := c.source.Token(ctx)
	if err != nil {
		log.Printf("collector: run %s aborted: token: %v", rep.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}

	core, normal := c.routes.Partition()
	targets := core
	if rep.DailyWindow {
		targets = append(targets, normal...)
	}
	log.Printf("collector: run %s starting: %d routes (daily=%t), %d weekends", rep.ID, len(targets), rep.DailyWindow, len(rep.Windows))

	first := true
	for _, rt := range targets {
		for _, w := range rep.Windows {
			if !first {
				if err := c.Sleep(ctx, c.cfg.FetchDelay); err != nil {
					rep.FinishedAt = c.Now()
					return rep, err
				}
			}
			first = false
			rep.Pairs = append(rep.Pairs, c.collectPair(ctx, token, rt, w))
		}
	}

	rep.FinishedAt = c.Now()
	log.Printf("collector: run %s done: quoted=%d no_quote=%d failed=%d alerts=%d",
		rep.ID, rep.Count(fares.OutcomeQuoted), rep.Count(fares.OutcomeNoQuote), rep.Count(fares.OutcomeFailed), rep.Alerts())
	return rep, nil
}

func (c *Collector) collectPair(ctx context.Context, token string, rt routes.Route, w fares.DateWindow) PairResult {
	res := c.source.Fetch(ctx, token, rt.Code, w)
	metrics.ObserveFetch(rt.Code, string(res.Outcome))

	pr := PairResult{Route: rt.Code, Window: w, Outcome: res.Outcome}
	switch res.Outcome {
	case fares.OutcomeFailed:
		pr.Err = res.Err
		log.Printf("collector: %s %s fetch failed: %v", rt.Code, w, res.Err)
		return pr
	case fares.OutcomeNoQuote:
		log.Printf("collector: %s %s no offers", rt.Code, w)
		return pr
	}

	q := res.Quote
	pr.Price = q.Price

	departure := w.Outbound.String()
	prev, err := c.store.LatestSample(ctx, rt.Code, departure)
	if err != nil {
		pr.Err = fmt.Errorf("latest sample: %w", err)
		log.Printf("collector: %s %s: %v", rt.Code, w, pr.Err)
		return pr
	}
	var prevPrice *int64
	if prev != nil {
		prevPrice = &prev.Price
	}
	pr.Delta = fares.Delta(q.Price, prevPrice)

	sample := storage.PriceSample{
		RouteCode:       rt.Code,
		Price:           q.Price,
		DepartureDate:   departure,
		ReturnDate:      w.Inbound.String(),
		OutboundDepTime: fares.ClockOf(q.OutboundDeparture),
		OutboundArrTime: fares.ClockOf(q.OutboundArrival),
		InboundDepTime:  fares.ClockOf(q.InboundDeparture),
		InboundArrTime:  fares.ClockOf(q.InboundArrival),
		Carrier:         q.Carrier,
		Desirable:       q.Desirable,
		Delta:           pr.Delta,
		CollectedAt:     c.Now(),
	}
	if err := c.store.InsertSample(ctx, sample); err != nil {
		pr.Err = fmt.Errorf("insert sample: %w", err)
		log.Printf("collector: %s %s: %v", rt.Code, w, pr.Err)
		return pr
	}
	metrics.ObservePrice(rt.Code, departure, q.Price)
	log.Printf("collector: %s %s %d KRW (delta %+d, desirable=%t)", rt.Code, w, q.Price, pr.Delta, q.Desirable)

	if prevPrice != nil && fares.IsDrop(pr.Delta) && c.notifier != nil {
		ev := fares.NewDropEvent(rt.Code, rt.Name, w, q.Price, *prevPrice)
		d := c.notifier.Dispatch(ctx, ev)
		pr.Alerted = true
		pr.Sinks = make(map[string]string)
		for _, s := range d.Sent {
			pr.Sinks[s] = "sent"
		}
		for _, s := range d.Skipped {
			pr.Sinks[s] = "skipped"
		}
		for s, err := range d.Failed {
			pr.Sinks[s] = err.Error()
		}
	}
	return pr
}
