package notification

import (
	"context"
	"io"
	"log"

	"github.com/bher20/flightticker/internal/fares"
	"github.com/bher20/flightticker/internal/metrics"
)

// Sink delivers drop events to one channel.
type Sink interface {
	Name() string
	// Enabled is false when the sink's credentials are not configured.
	Enabled() bool
	Send(ctx context.Context, ev fares.DropEvent) error
}

// DispatchReport lists what happened to each sink for one event.
type DispatchReport struct {
	Sent    []string
	Skipped []string
	Failed  map[string]error
}

// Dispatcher fans a drop event out to every sink.
type Dispatcher struct {
	sinks []Sink
}

func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Sinks returns the configured sinks.
func (d *Dispatcher) Sinks() []Sink { return d.sinks }

// Dispatch sends ev to every enabled sink. Sink errors are logged and
// reported, never returned; one failing sink does not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, ev fares.DropEvent) DispatchReport {
	rep := DispatchReport{Failed: make(map[string]error)}
	for _, s := range d.sinks {
		if !s.Enabled() {
			rep.Skipped = append(rep.Skipped, s.Name())
			continue
		}
		err := s.Send(ctx, ev)
		metrics.ObserveAlert(s.Name(), err)
		if err != nil {
			log.Printf("notification: %s failed for %s %s: %v", s.Name(), ev.RouteCode, ev.DepartureDate, err)
			rep.Failed[s.Name()] = err
			continue
		}
		rep.Sent = append(rep.Sent, s.Name())
	}
	return rep
}

// Close releases sinks that hold connections.
func (d *Dispatcher) Close() error {
	var first error
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
