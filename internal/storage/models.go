package storage

import "time"

// PriceSample is one persisted quote. Rows are append-only; the latest price
// for a (route, departure date) key is the row with the greatest CollectedAt.
type PriceSample struct {
	ID              uint      `json:"-" gorm:"primaryKey;column:id"`
	RouteCode       string    `json:"route_code" gorm:"column:route_code;index:idx_price_history_key,priority:1"`
	Price           int64     `json:"price" gorm:"column:price"`
	DepartureDate   string    `json:"departure_date" gorm:"column:departure_date;index:idx_price_history_key,priority:2"`
	ReturnDate      string    `json:"return_date" gorm:"column:return_date"`
	OutboundDepTime string    `json:"outbound_dep_time,omitempty" gorm:"column:outbound_dep_time"`
	OutboundArrTime string    `json:"outbound_arr_time,omitempty" gorm:"column:outbound_arr_time"`
	InboundDepTime  string    `json:"inbound_dep_time,omitempty" gorm:"column:inbound_dep_time"`
	InboundArrTime  string    `json:"inbound_arr_time,omitempty" gorm:"column:inbound_arr_time"`
	Carrier         string    `json:"carrier,omitempty" gorm:"column:carrier"`
	Desirable       bool      `json:"is_desirable" gorm:"column:is_desirable"`
	Delta           int64     `json:"delta" gorm:"column:delta"`
	CollectedAt     time.Time `json:"collected_at" gorm:"column:collected_at;index:idx_price_history_key,priority:3"`
}

// TableName keeps the table name shared with the SQL migrations.
func (PriceSample) TableName() string { return "price_history" }

// RouteSummary aggregates every sample of a route.
type RouteSummary struct {
	RouteCode  string  `json:"route_code" gorm:"column:route_code"`
	MinPrice   int64   `json:"min_price" gorm:"column:min_price"`
	MaxPrice   int64   `json:"max_price" gorm:"column:max_price"`
	AvgPrice   float64 `json:"avg_price" gorm:"column:avg_price"`
	DataPoints int64   `json:"data_points" gorm:"column:data_points"`
}

// ScheduledJob records the last run of a periodic job.
type ScheduledJob struct {
	Name           string    `json:"name" gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastDurationMs int64     `json:"last_duration_ms" gorm:"column:last_duration_ms"`
	LastSuccess    int       `json:"last_success" gorm:"column:last_success"`
	LastError      string    `json:"last_error" gorm:"column:last_error"`
}

func (ScheduledJob) TableName() string { return "scheduled_jobs" }
