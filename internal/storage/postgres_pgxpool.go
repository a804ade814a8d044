package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bher20/flightticker/internal/metrics"
)

type PostgresPoolStorage struct {
	pool *pgxpool.Pool

	// Session advisory locks live on the connection that took them.
	mu    sync.Mutex
	locks map[int64]*pgxpool.Conn
}

const sampleColumns = `route_code, price, departure_date, return_date,
	outbound_dep_time, outbound_arr_time, inbound_dep_time, inbound_arr_time,
	carrier, is_desirable, delta, collected_at`

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/flightticker?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresPoolStorage{pool: pool, locks: make(map[int64]*pgxpool.Conn)}, nil
}

func (s *PostgresPoolStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	st := s.pool.Stat()
	metrics.UpdateDBPoolMetrics("postgrespool",
		float64(st.TotalConns()), float64(st.IdleConns()), float64(st.AcquiredConns()), uint64(st.AcquireCount()))
	return err
}

func (s *PostgresPoolStorage) InsertSample(ctx context.Context, p PriceSample) error {
	if p.CollectedAt.IsZero() {
		p.CollectedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_history (`+sampleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.RouteCode, p.Price, p.DepartureDate, p.ReturnDate,
		p.OutboundDepTime, p.OutboundArrTime, p.InboundDepTime, p.InboundArrTime,
		p.Carrier, p.Desirable, p.Delta, p.CollectedAt)
	return err
}

func (s *PostgresPoolStorage) LatestSample(ctx context.Context, route, departureDate string) (*PriceSample, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, `+sampleColumns+`
		FROM price_history
		WHERE route_code=$1 AND departure_date=$2
		ORDER BY collected_at DESC, id DESC
		LIMIT 1
	`, route, departureDate)

	p, err := scanSample(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *PostgresPoolStorage) History(ctx context.Context, route string, limit int) ([]PriceSample, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, `+sampleColumns+`
		FROM price_history
		WHERE route_code=$1
		ORDER BY collected_at DESC, id DESC
		LIMIT $2
	`, route, limit)
	if err != nil {
		return nil, err
	}
	out, err := collectSamples(rows)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *PostgresPoolStorage) LatestPerDeparture(ctx context.Context) ([]PriceSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (route_code, departure_date) id, `+sampleColumns+`
		FROM price_history
		ORDER BY route_code, departure_date, collected_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectSamples(rows)
}

func (s *PostgresPoolStorage) Summary(ctx context.Context) ([]RouteSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT route_code, MIN(price), MAX(price), AVG(price)::float8, COUNT(*)
		FROM price_history
		GROUP BY route_code
		ORDER BY route_code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteSummary
	for rows.Next() {
		var r RouteSummary
		if err := rows.Scan(&r.RouteCode, &r.MinPrice, &r.MaxPrice, &r.AvgPrice, &r.DataPoints); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[key]; held {
		return false, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	if s.locks == nil {
		s.locks = make(map[int64]*pgxpool.Conn)
	}
	s.locks[key] = conn
	return true, nil
}

func (s *PostgresPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.mu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok); err != nil {
		// Closing the session drops its locks; the pool discards closed conns.
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Conn().Close(closeCtx)
		return false, err
	}
	return ok, nil
}

func (s *PostgresPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	job := newScheduledJob(name, started, dur, success, errMsg)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at=EXCLUDED.last_run_at,
			last_duration_ms=EXCLUDED.last_duration_ms,
			last_success=EXCLUDED.last_success,
			last_error=EXCLUDED.last_error
	`, job.Name, job.LastRunAt, job.LastDurationMs, job.LastSuccess, job.LastError)
	return err
}

func scanSample(row pgx.Row) (PriceSample, error) {
	var p PriceSample
	var id int64
	err := row.Scan(&id, &p.RouteCode, &p.Price, &p.DepartureDate, &p.ReturnDate,
		&p.OutboundDepTime, &p.OutboundArrTime, &p.InboundDepTime, &p.InboundArrTime,
		&p.Carrier, &p.Desirable, &p.Delta, &p.CollectedAt)
	p.ID = uint(id)
	return p, err
}

func collectSamples(rows pgx.Rows) ([]PriceSample, error) {
	defer rows.Close()
	var out []PriceSample
	for rows.Next() {
		p, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
