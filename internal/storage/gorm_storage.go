package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB

	mu sync.Mutex
	// pgLocks pins each postgres session lock to its connection. SQLite has
	// no advisory locks, so held keys are tracked in process.
	pgLocks map[int64]*sql.Conn
	held    map[int64]bool
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	switch driver {
	case "postgres", "postgrespool":
		if dsn == "" {
			dsn = "postgres://localhost:5432/flightticker?sslmode=disable"
		}
		gormDialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "flight_ticker.db"
		}
		gormDialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{db: db}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&PriceSample{},
		&ScheduledJob{},
	)
}

// Price history

func (s *GormStorage) InsertSample(ctx context.Context, sample PriceSample) error {
	if sample.CollectedAt.IsZero() {
		sample.CollectedAt = time.Now()
	}
	sample.ID = 0
	return s.db.WithContext(ctx).Create(&sample).Error
}

func (s *GormStorage) LatestSample(ctx context.Context, route, departureDate string) (*PriceSample, error) {
	var sample PriceSample
	result := s.db.WithContext(ctx).
		Where("route_code = ? AND departure_date = ?", route, departureDate).
		Order("collected_at desc, id desc").
		First(&sample)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sample, nil
}

func (s *GormStorage) History(ctx context.Context, route string, limit int) ([]PriceSample, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var samples []PriceSample
	result := s.db.WithContext(ctx).
		Where("route_code = ?", route).
		Order("collected_at desc, id desc").
		Limit(limit).
		Find(&samples)
	if result.Error != nil {
		return nil, result.Error
	}
	reverse(samples)
	return samples, nil
}

func (s *GormStorage) LatestPerDeparture(ctx context.Context) ([]PriceSample, error) {
	var samples []PriceSample
	result := s.db.WithContext(ctx).Raw(`
		SELECT p1.*
		FROM price_history p1
		WHERE p1.collected_at = (
			SELECT MAX(p2.collected_at)
			FROM price_history p2
			WHERE p2.route_code = p1.route_code
			  AND p2.departure_date = p1.departure_date
		)
		ORDER BY p1.route_code, p1.departure_date, p1.id
	`).Scan(&samples)
	if result.Error != nil {
		return nil, result.Error
	}
	return dedupeLatest(samples), nil
}

func (s *GormStorage) Summary(ctx context.Context) ([]RouteSummary, error) {
	var out []RouteSummary
	result := s.db.WithContext(ctx).
		Model(&PriceSample{}).
		Select("route_code, MIN(price) AS min_price, MAX(price) AS max_price, AVG(price) AS avg_price, COUNT(*) AS data_points").
		Group("route_code").
		Order("route_code").
		Scan(&out)
	return out, result.Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Scheduled Jobs & Locking

func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		s.held = make(map[int64]bool)
		s.pgLocks = make(map[int64]*sql.Conn)
	}
	if s.held[key] {
		return false, nil
	}
	if s.db.Dialector.Name() != "postgres" {
		s.held[key] = true
		return true, nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil || !ok {
		_ = conn.Close()
		return false, err
	}
	s.held[key] = true
	s.pgLocks[key] = conn
	return true, nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	held := s.held[key]
	conn := s.pgLocks[key]
	delete(s.held, key)
	delete(s.pgLocks, key)
	s.mu.Unlock()
	if conn == nil {
		return held, nil
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok); err != nil {
		// Discard the session so the server drops its locks.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		return false, err
	}
	return ok, conn.Close()
}

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	job := newScheduledJob(name, started, dur, success, errMsg)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

func newScheduledJob(name string, started time.Time, dur time.Duration, success bool, errMsg string) ScheduledJob {
	status := 0
	if success {
		status = 1
	}
	return ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
}

func reverse(samples []PriceSample) {
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
}

// dedupeLatest keeps the last row per (route, departure date) from rows
// sorted by route, departure date and insertion order. Two samples sharing a
// collection timestamp would otherwise both match MAX(collected_at).
func dedupeLatest(samples []PriceSample) []PriceSample {
	out := samples[:0]
	for _, s := range samples {
		n := len(out)
		if n > 0 && out[n-1].RouteCode == s.RouteCode && out[n-1].DepartureDate == s.DepartureDate {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}
