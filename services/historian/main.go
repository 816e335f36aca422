package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/luftdaten-historian/services/historian/config"
	httpserver "github.com/02loveslollipop/luftdaten-historian/services/historian/http"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/archive"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/db"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/filestore"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/ingest"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/logging"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/metrics"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/scheduler"
	"github.com/02loveslollipop/luftdaten-historian/services/historian/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("historian failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	metrics.Init()
	logger := logging.Component("main")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: cfg.RequestTimeout}
	catalog := archive.NewClient(cfg.ArchiveBaseURL, client, cfg.CatalogTTL)
	store := filestore.New(cfg.DataDir)

	opts := ingest.Options{FetchDelay: cfg.FetchDelay}
	if cfg.DatabaseURL != "" {
		mirror, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connection error: %w", err)
		}
		defer mirror.Close()
		opts.Mirror = mirror
		logger.Info("postgres mirror enabled")
	}

	days := ingest.NewDayIngestor(catalog, store, opts)
	sensors := ingest.NewSensorAggregator(catalog, store, opts)

	sched := scheduler.New(&scheduler.Config{
		TickInterval: cfg.SchedulerTick,
		DrainTimeout: cfg.DrainTimeout,
	}, dayJob(days), sensorJob(sensors))

	svc := service.New(sched, store, catalog, cfg.MaxSensorID)
	srv := httpserver.New(cfg, svc)

	logger.Info("historian listening", "addr", cfg.ListenAddr(), "data_dir", cfg.DataDir, "archive", cfg.ArchiveBaseURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}

func dayJob(d *ingest.DayIngestor) scheduler.Job {
	return func(ctx context.Context, key string) error {
		_, err := d.Run(ctx, key)
		return err
	}
}

func sensorJob(a *ingest.SensorAggregator) scheduler.Job {
	return func(ctx context.Context, key string) error {
		sensorID, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("invalid sensor key %q: %w", key, err)
		}
		_, err = a.Run(ctx, sensorID)
		return err
	}
}
