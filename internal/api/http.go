package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/bher20/flightticker/internal/auth"
	"github.com/bher20/flightticker/internal/collector"
	"github.com/bher20/flightticker/internal/cron"
	"github.com/bher20/flightticker/internal/fares"
	"github.com/bher20/flightticker/internal/metrics"
	"github.com/bher20/flightticker/internal/routes"
	"github.com/bher20/flightticker/internal/storage"
	"github.com/bher20/flightticker/internal/ui"
)

// DefaultRoute is served by /api/prices when no route is given.
const DefaultRoute = "HKG"

// Trigger starts a collection run on demand.
type Trigger interface {
	Trigger(ctx context.Context) (*collector.RunReport, error)
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Store  storage.Storage
	Routes *routes.Registry
	// Auth guards POST /api/collect. Nil or without credentials disables it.
	Auth    *auth.Service
	Trigger Trigger
	// Location is used to render sample times. Defaults to UTC.
	Location *time.Location
}

// NewRouter constructs the HTTP handler: read API, manual trigger, metrics,
// health endpoints and the dashboard.
func NewRouter(d Deps) http.Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Routes == nil {
		d.Routes = routes.DefaultRegistry()
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Metrics endpoint.
	r.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.readyz)
	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(instrument)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/prices", h.prices)
			r.Get("/latest", h.latest)
			r.Get("/summary", h.summary)
			r.Get("/routes", h.routes)
			r.Get("/ticker", h.ticker)
		})
		if d.Auth != nil && d.Auth.Enabled() && d.Trigger != nil {
			r.With(d.Auth.Middleware).
				Method(http.MethodPost, "/collect", d.Auth.RequirePermission("collect", "run", http.HandlerFunc(h.collect)))
		}
	})

	// Web UI
	r.Handle("/ui/*", http.StripPrefix("/ui/", ui.Handler()))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	// Reads are public; any origin may fetch them.
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

// instrument records request metrics labelled by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		metrics.RequestsTotal.WithLabelValues(path).Inc()
		metrics.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
		if status := ww.Status(); status >= 400 {
			metrics.RequestErrorsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
		}
	})
}

type handlers struct {
	Deps
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("api: encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		log.Printf("readyz: db ping failed: %v", err)
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// routeParam returns the upper-cased route query value or def.
func routeParam(r *http.Request, def string) string {
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("route")))
	if code == "" {
		return def
	}
	return code
}

// PricePoint is one entry of a route's chart series.
type PricePoint struct {
	Time          string `json:"time"`
	Price         int64  `json:"price"`
	DepartureDate string `json:"departure_date"`
	ReturnDate    string `json:"return_date"`
	Delta         int64  `json:"delta"`
	Desirable     bool   `json:"is_desirable"`
}

func (h *handlers) prices(w http.ResponseWriter, r *http.Request) {
	route := routeParam(r, DefaultRoute)
	limit := storage.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	samples, err := h.Store.History(r.Context(), route, limit)
	if err != nil {
		log.Printf("api: history for %s failed: %v", route, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]PricePoint, 0, len(samples))
	for _, s := range samples {
		out = append(out, PricePoint{
			Time:          s.CollectedAt.In(h.Location).Format("01/02 15:04"),
			Price:         s.Price,
			DepartureDate: s.DepartureDate,
			ReturnDate:    s.ReturnDate,
			Delta:         s.Delta,
			Desirable:     s.Desirable,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) latest(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.LatestPerDeparture(r.Context())
	if err != nil {
		log.Printf("api: latest failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []storage.PriceSample{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.Summary(r.Context())
	if err != nil {
		log.Printf("api: summary failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == nil {
		rows = []storage.RouteSummary{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) routes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Routes.All())
}

// Ticker is the dashboard card for one route.
type Ticker struct {
	Route         string  `json:"route"`
	City          string  `json:"city"`
	Emoji         string  `json:"emoji,omitempty"`
	Current       int64   `json:"current"`
	Previous      int64   `json:"previous"`
	Change        int64   `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Min           int64   `json:"min"`
	Max           int64   `json:"max"`
	DataPoints    int     `json:"data_points"`
}

// NewTicker derives the card from a history series, oldest first. With a
// single sample the previous price equals the current one.
func NewTicker(rt routes.Route, series []storage.PriceSample) Ticker {
	t := Ticker{Route: rt.Code, City: rt.Name, Emoji: rt.Emoji, DataPoints: len(series)}
	if len(series) == 0 {
		return t
	}
	t.Current = series[len(series)-1].Price
	t.Previous = t.Current
	if len(series) > 1 {
		t.Previous = series[len(series)-2].Price
	}
	t.Change = t.Current - t.Previous
	if t.Previous > 0 {
		t.ChangePercent = math.Round(float64(t.Change)/float64(t.Previous)*1000) / 10
	}
	t.Min, t.Max = series[0].Price, series[0].Price
	for _, s := range series[1:] {
		if s.Price < t.Min {
			t.Min = s.Price
		}
		if s.Price > t.Max {
			t.Max = s.Price
		}
	}
	return t
}

func (h *handlers) ticker(w http.ResponseWriter, r *http.Request) {
	code := routeParam(r, DefaultRoute)
	rt, ok := h.Routes.Get(code)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown route "+code)
		return
	}
	series, err := h.Store.History(r.Context(), rt.Code, storage.DefaultHistoryLimit)
	if err != nil {
		log.Printf("api: history for %s failed: %v", rt.Code, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, NewTicker(rt, series))
}

type collectResponse struct {
	Status string                 `json:"status"`
	Error  string                 `json:"error,omitempty"`
	Report *collector.RunReport   `json:"report,omitempty"`
	Counts map[string]interface{} `json:"counts,omitempty"`
}

func (h *handlers) collect(w http.ResponseWriter, r *http.Request) {
	// A run always completes; a client that gives up only loses the report.
	rep, err := h.Trigger.Trigger(context.WithoutCancel(r.Context()))
	resp := collectResponse{Status: "ok", Report: rep}
	if rep != nil {
		resp.Counts = map[string]interface{}{
			"pairs":    len(rep.Pairs),
			"quoted":   rep.Count(fares.OutcomeQuoted),
			"no_quote": rep.Count(fares.OutcomeNoQuote),
			"failed":   rep.Count(fares.OutcomeFailed),
			"alerts":   rep.Alerts(),
		}
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, cron.ErrLocked):
		status, resp.Status = http.StatusConflict, "locked"
	case errors.Is(err, collector.ErrCredential):
		status, resp.Status = http.StatusBadGateway, "credential_error"
	default:
		status, resp.Status = http.StatusInternalServerError, "failed"
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}
