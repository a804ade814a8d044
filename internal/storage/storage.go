package storage

import (
	"context"
	"time"
)

// DefaultHistoryLimit caps the history returned for charting.
const DefaultHistoryLimit = 30

// Storage abstracts persistence of the price history.
type Storage interface {
	// InsertSample appends a sample. CollectedAt defaults to now.
	InsertSample(ctx context.Context, s PriceSample) error
	// LatestSample returns the most recent sample for a route and departure
	// date, or nil when none exists.
	LatestSample(ctx context.Context, route, departureDate string) (*PriceSample, error)
	// History returns the most recent limit samples of a route, oldest first.
	History(ctx context.Context, route string, limit int) ([]PriceSample, error)
	// LatestPerDeparture returns the latest sample for every (route, departure
	// date), ordered by route then departure date.
	LatestPerDeparture(ctx context.Context) ([]PriceSample, error)
	// Summary aggregates min/max/avg/count per route.
	Summary(ctx context.Context) ([]RouteSummary, error)

	// Jobs & locking
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	// AcquireAdvisoryLock tries to take key without blocking. A held lock is
	// pinned to one connection until ReleaseAdvisoryLock.
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	// ReleaseAdvisoryLock reports whether key was held by this process.
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}
