package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/playperu/wayfinder/internal/config"
	"github.com/playperu/wayfinder/internal/database"
	"github.com/playperu/wayfinder/internal/directions"
	"github.com/playperu/wayfinder/internal/handler/health"
	"github.com/playperu/wayfinder/internal/migrations"
	"github.com/playperu/wayfinder/internal/planner"
	"github.com/playperu/wayfinder/internal/server"
)

const geocodePruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.OpenInDir(ctx, cfg.DBDir, "wayfinder.db")
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "dir", cfg.DBDir)

	geocodes := directions.NewGeocodeStore(db)

	// --- Directions ---
	client, err := newDirectionsClient(cfg, geocodes, logger)
	if err != nil {
		return fmt.Errorf("creating directions client: %w", err)
	}
	logger.Info("directions provider ready", "provider", cfg.Provider)

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := planner.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// --- Sessions ---
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return fmt.Errorf("parsing LOCALE %q: %w", cfg.Locale, err)
	}
	sessions := server.NewRegistry(client, server.NewBroker(logger), planner.NewFormatter(tag), logger,
		planner.WithLookupTimeout(cfg.LookupTimeout),
		planner.WithMetrics(metrics),
	)
	defer sessions.Close()

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, sessions, map[string]health.Checker{
		"sqlite": health.CheckFunc(geocodes.Ping),
	}, metrics.Gatherer(), cfg.SPADir)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error {
		return sessions.RunSweeper(gctx, cfg.SessionTTL)
	})

	g.Go(func() error {
		return pruneGeocodes(gctx, geocodes, cfg.GeocodeCacheTTL, logger)
	})

	return g.Wait()
}

// newDirectionsClient builds the configured provider. Mapbox geocodes
// through the SQLite-backed cache; Google resolves free text itself.
func newDirectionsClient(cfg *config.Config, geocodes *directions.GeocodeStore, logger *slog.Logger) (directions.Client, error) {
	switch cfg.Provider {
	case "google":
		gc, err := directions.NewGoogleClient(cfg.GoogleAPIKey, logger)
		if err != nil {
			return nil, err
		}
		return gc, nil
	default:
		mb := directions.NewMapboxClient(directions.MapboxConfig{
			Token:   cfg.MapboxToken,
			BaseURL: cfg.MapboxBaseURL,
			Profile: cfg.MapboxProfile,
		}, logger)
		mb.UseGeocoder(directions.NewCachedGeocoder(mb, geocodes, "mapbox", cfg.GeocodeCacheTTL, logger))
		return mb, nil
	}
}

func pruneGeocodes(ctx context.Context, store *directions.GeocodeStore, ttl time.Duration, logger *slog.Logger) error {
	t := time.NewTicker(geocodePruneInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := store.Prune(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Warn("pruning geocode cache", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned geocode cache", "rows", n)
			}
		}
	}
}
