package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/application"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/dashboard"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/metrics"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/scheduler"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/workflow"
)

const serviceName = "iot-sensor-service"

func main() {
	var configFile string
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Soil moisture sensor registry and service workflow for field technicians",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(config.New(), configFile)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "Path to an optional configuration file")

	rootCmd.AddCommand(newServeCmd(&cfg), newReportCmd(&cfg), newSeedCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry, technician sessions and dashboard over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, *cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.NewLoggerWithLevel(cfg.Log.Level)
	log.Infof("Starting up %s ...", serviceName)

	db, err := openDatastore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDatastore(db, log)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := newStore(db, cfg, log, registry.WithMetrics(m))
	sensors, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	log.Infof("Loaded %d sensors on %d sites", len(sensors), len(store.Sites())-1)

	opts := []workflow.Option{workflow.WithMetrics(m)}

	if cfg.Messaging.Enabled {
		messenger, err := messaging.Initialize(messaging.LoadConfiguration(cfg.Messaging.ServiceName))
		if err != nil {
			return fmt.Errorf("failed to connect to message bus: %w", err)
		}
		defer messenger.Close()

		opts = append(opts, workflow.WithRecorder(application.NewVisitPublisher(messenger, log)))
	} else {
		log.Infof("Messaging is disabled, committed visits are not published")
	}

	sessions := workflow.NewSessions(store, log, opts...)
	board := dashboard.New(log, dashboard.WithMetrics(m))

	runner := scheduler.New(ctx, log)
	if err := runner.Add("dashboard refresh", cfg.Dashboard.Refresh, func(context.Context) {
		board.Refresh()
	}); err != nil {
		return err
	}
	if err := runner.Add("session pruning", cfg.Sessions.Prune, func(context.Context) {
		sessions.Prune(time.Now().Add(-cfg.Sessions.IdleTimeout))
	}); err != nil {
		return err
	}

	runner.Start()
	defer runner.Stop()

	api := application.NewAPI(store, sessions, board, cfg.Technician, log)
	return application.CreateRouterAndStartServing(ctx, log, cfg.HTTP.Port, api, reg)
}

func newReportCmd(cfg *config.Config) *cobra.Command {
	var outDir string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the validation dashboard report as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLoggerWithLevel(cfg.Log.Level)

			opts := []dashboard.Option{}
			if cfg.Registry.Seed != 0 {
				opts = append(opts, dashboard.WithSeed(cfg.Registry.Seed))
			}

			board := dashboard.New(log, opts...)
			if refresh {
				board.Refresh()
			}

			now := time.Now()
			path := filepath.Join(outDir, dashboard.ReportFilename(now))

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create report: %w", err)
			}
			defer f.Close()

			if err := dashboard.WriteReport(f, board.Zones(), now); err != nil {
				return err
			}

			log.Infof("Wrote report to %s", path)
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write the report to")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Draw a fresh set of zone readings before writing")

	return cmd
}

func newSeedCmd(cfg *config.Config) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the registry with mock sensors if it is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.NewLoggerWithLevel(cfg.Log.Level)

			db, err := openDatastore(ctx, *cfg, log)
			if err != nil {
				return err
			}
			defer closeDatastore(db, log)

			store := newStore(db, *cfg, log)

			if reset {
				err = store.Reset(ctx)
			} else {
				_, err = store.Load(ctx)
			}
			if err != nil {
				return err
			}

			for _, site := range store.Sites() {
				if site.ID != domain.NoSiteID {
					log.Infof("Site %s (%s) has %d sensors", site.ID, site.Info, site.PlannedCount)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Discard stored sensors and sites and seed again")

	return cmd
}
