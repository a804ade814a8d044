package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu      sync.RWMutex
	nextID  uint
	samples []PriceSample
	jobs    map[string]ScheduledJob
	locks   map[int64]bool
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		jobs:  make(map[string]ScheduledJob),
		locks: make(map[int64]bool),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) InsertSample(ctx context.Context, s PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CollectedAt.IsZero() {
		s.CollectedAt = time.Now()
	}
	m.nextID++
	s.ID = m.nextID
	m.samples = append(m.samples, s)
	return nil
}

// newer reports whether a was collected after b, breaking ties by insertion.
func newer(a, b PriceSample) bool {
	if !a.CollectedAt.Equal(b.CollectedAt) {
		return a.CollectedAt.After(b.CollectedAt)
	}
	return a.ID > b.ID
}

func (m *MemoryStorage) LatestSample(ctx context.Context, route, departureDate string) (*PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *PriceSample
	for i := range m.samples {
		s := m.samples[i]
		if s.RouteCode != route || s.DepartureDate != departureDate {
			continue
		}
		if latest == nil || newer(s, *latest) {
			cp := s
			latest = &cp
		}
	}
	return latest, nil
}

func (m *MemoryStorage) History(ctx context.Context, route string, limit int) ([]PriceSample, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	m.mu.RLock()
	var out []PriceSample
	for _, s := range m.samples {
		if s.RouteCode == route {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return newer(out[j], out[i]) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStorage) LatestPerDeparture(ctx context.Context) ([]PriceSample, error) {
	type key struct{ route, date string }

	m.mu.RLock()
	latest := make(map[key]PriceSample)
	for _, s := range m.samples {
		k := key{s.RouteCode, s.DepartureDate}
		if cur, ok := latest[k]; !ok || newer(s, cur) {
			latest[k] = s
		}
	}
	m.mu.RUnlock()

	out := make([]PriceSample, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RouteCode != out[j].RouteCode {
			return out[i].RouteCode < out[j].RouteCode
		}
		return out[i].DepartureDate < out[j].DepartureDate
	})
	return out, nil
}

func (m *MemoryStorage) Summary(ctx context.Context) ([]RouteSummary, error) {
	m.mu.RLock()
	byRoute := make(map[string]*RouteSummary)
	totals := make(map[string]int64)
	for _, s := range m.samples {
		r, ok := byRoute[s.RouteCode]
		if !ok {
			r = &RouteSummary{RouteCode: s.RouteCode, MinPrice: s.Price, MaxPrice: s.Price}
			byRoute[s.RouteCode] = r
		}
		if s.Price < r.MinPrice {
			r.MinPrice = s.Price
		}
		if s.Price > r.MaxPrice {
			r.MaxPrice = s.Price
		}
		r.DataPoints++
		totals[s.RouteCode] += s.Price
	}
	m.mu.RUnlock()

	out := make([]RouteSummary, 0, len(byRoute))
	for code, r := range byRoute {
		r.AvgPrice = float64(totals[code]) / float64(r.DataPoints)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteCode < out[j].RouteCode })
	return out, nil
}

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.locks[key]
	delete(m.locks, key)
	return held, nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = newScheduledJob(name, started, dur, success, errMsg)
	return nil
}

// ScheduledJob returns the last recorded run of a job.
func (m *MemoryStorage) ScheduledJob(name string) (ScheduledJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[name]
	return j, ok
}
