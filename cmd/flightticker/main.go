package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/flightticker/internal/alerting"
	"github.com/bher20/flightticker/internal/amadeus"
	"github.com/bher20/flightticker/internal/api"
	"github.com/bher20/flightticker/internal/auth"
	"github.com/bher20/flightticker/internal/collector"
	"github.com/bher20/flightticker/internal/config"
	"github.com/bher20/flightticker/internal/cron"
	"github.com/bher20/flightticker/internal/fares"
	"github.com/bher20/flightticker/internal/migrate"
	"github.com/bher20/flightticker/internal/notification"
	"github.com/bher20/flightticker/internal/routes"
	"github.com/bher20/flightticker/internal/storage"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "flightticker",
		Short:         "Weekend fare tracker for flights out of Incheon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./flightticker.yaml)")

	root.AddCommand(serveCmd(), collectCmd(), workerCmd(), migrateCmd(), hashTokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Printf("flightticker: %v", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// app holds everything a command needs, built from the config.
type app struct {
	cfg      config.Config
	loc      *time.Location
	store    storage.Storage
	registry *routes.Registry
	alerts   *notification.Dispatcher
	worker   *cron.Worker
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Collector.Timezone)
	if err != nil {
		return nil, err
	}

	reg := routes.DefaultRegistry()
	if cfg.Collector.Routes != "" {
		if reg, err = routes.Parse(cfg.Collector.Routes); err != nil {
			return nil, err
		}
	}

	if cfg.DB.AutoMigrate && cfg.DB.Driver != "memory" {
		if err := migrate.Up(ctx, cfg.DB.Driver, cfg.DB.DSN); err != nil {
			log.Printf("auto-migration failed: %v", err)
		}
	}
	st, err := storage.Open(ctx, storage.Config{Driver: cfg.DB.Driver, DSN: cfg.DB.DSN})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	client := amadeus.NewClient(amadeus.Config{
		BaseURL:      cfg.Amadeus.BaseURL,
		ClientID:     cfg.Amadeus.ClientID,
		ClientSecret: cfg.Amadeus.ClientSecret,
		MaxResults:   cfg.Amadeus.MaxResults,
		Timeout:      cfg.Amadeus.Timeout,
	}, nil)
	dispatcher := notification.FromConfig(cfg)

	coll := collector.New(collector.Config{
		Weekends:    cfg.Collector.Weekends,
		FetchDelay:  cfg.Collector.FetchDelay,
		Location:    loc,
		WindowStart: cfg.Collector.DailyWindowStart,
		WindowEnd:   cfg.Collector.DailyWindowEnd,
	}, reg, client, st, dispatcher)

	worker := &cron.Worker{
		Runner:   coll,
		Store:    st,
		Failures: alerting.NewAlerter(alerting.NewAlertConfig(cfg.Webhook.URL, cfg.Webhook.Type)),
		Schedule: cfg.Cron.Schedule,
		Location: loc,
		LockKey:  cfg.Cron.LockKey,
	}

	for _, s := range dispatcher.Sinks() {
		log.Printf("notification: sink %s enabled=%t", s.Name(), s.Enabled())
	}
	return &app{cfg: cfg, loc: loc, store: st, registry: reg, alerts: dispatcher, worker: worker}, nil
}

func (a *app) Close() {
	if err := a.alerts.Close(); err != nil {
		log.Printf("notification: close: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("storage: close: %v", err)
	}
}

func serveCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			authSvc, err := auth.NewService(
				auth.Credential{Name: "admin", Role: auth.RoleAdmin, Hash: a.cfg.HTTP.AdminTokenHash},
				auth.Credential{Name: "operator", Role: auth.RoleOperator, Hash: a.cfg.HTTP.OperatorTokenHash},
			)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: ":" + a.cfg.HTTP.Port,
				Handler: api.NewRouter(api.Deps{
					Store:    a.store,
					Routes:   a.registry,
					Auth:     authSvc,
					Trigger:  a.worker,
					Location: a.loc,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			if withWorker {
				go func() {
					if err := a.worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Printf("cron: worker stopped: %v", err)
					}
				}()
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Printf("flightticker listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the scheduled collector in this process")
	return cmd
}

func collectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.worker.Trigger(cmd.Context())
			if rep != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(map[string]interface{}{
					"id":       rep.ID,
					"windows":  rep.Windows,
					"daily":    rep.DailyWindow,
					"quoted":   rep.Count(fares.OutcomeQuoted),
					"no_quote": rep.Count(fares.OutcomeNoQuote),
					"failed":   rep.Count(fares.OutcomeFailed),
					"alerts":   rep.Alerts(),
				})
			}
			return err
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Collect on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.worker.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	run := func(fn func(ctx context.Context, driver, dsn string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return fn(cmd.Context(), cfg.DB.Driver, cfg.DB.DSN)
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run(migrate.Up)},
		&cobra.Command{Use: "down", Short: "Roll back the last migration", RunE: run(migrate.Down)},
		&cobra.Command{Use: "status", Short: "Show migration status", RunE: run(migrate.Status)},
	)
	return cmd
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to configure for an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
