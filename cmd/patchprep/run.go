package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	gdaladapter "github.com/couchcryptid/storm-damage-patches/internal/adapter/gdal"
	httpadapter "github.com/couchcryptid/storm-damage-patches/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-damage-patches/internal/adapter/kafka"
	"github.com/couchcryptid/storm-damage-patches/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-damage-patches/internal/catalog"
	"github.com/couchcryptid/storm-damage-patches/internal/config"
	"github.com/couchcryptid/storm-damage-patches/internal/domain"
	"github.com/couchcryptid/storm-damage-patches/internal/observability"
	"github.com/couchcryptid/storm-damage-patches/internal/pipeline"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	store   *gdaladapter.Store
	links   *catalog.LinkCatalog
	event   string
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	store := gdaladapter.NewStore(logger)

	ev := event
	if ev == "" {
		ev = cfg.DefaultEvent
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		store:   store,
		links:   catalog.NewLinkCatalog(cfg, store, metrics, logger),
		event:   ev,
	}, nil
}

// geocoder returns the country geocoder, or nil when geocoding is disabled.
func (a *app) geocoder() domain.Geocoder {
	if !a.cfg.MapboxEnabled {
		a.logger.Info("mapbox geocoding disabled")
		return nil
	}
	client := mapbox.NewClient(a.cfg.MapboxToken, a.cfg.MapboxTimeout, a.metrics, a.logger)
	a.metrics.GeocodeEnabled.Set(1)
	a.logger.Info("mapbox geocoding enabled", "cache_size", a.cfg.MapboxCacheSize, "timeout", a.cfg.MapboxTimeout)
	return mapbox.NewCachedGeocoder(client, a.cfg.MapboxCacheSize, a.metrics)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observer := observability.MultiObserver{
		observability.NewMetricsObserver(a.metrics),
		observability.NewLogObserver(a.logger),
	}
	if a.cfg.KafkaEnabled() {
		publisher := kafkaadapter.NewPublisher(a.cfg, a.metrics, a.logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				a.logger.Error("kafka publisher close error", "error", err)
			}
		}()
		observer = append(observer, publisher)
		a.logger.Info("publishing patch events", "topic", a.cfg.KafkaPatchTopic, "brokers", a.cfg.KafkaBrokers)
	}

	labels := catalog.NewLabelCatalog(a.cfg, a.geocoder(), a.metrics, a.logger)
	driver := pipeline.New(a.links, labels, a.store, observer, a.logger, a.metrics, pipeline.Options{
		Distance:  a.cfg.PatchDistance,
		Workers:   a.cfg.Workers,
		OutputDir: a.cfg.PatchesDir(),
		Overwrite: overwrite,
	})

	if a.cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(a.cfg.MetricsAddr, driver, driver, a.logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	summary, err := driver.Run(ctx, a.event)
	if encErr := writeIndented(cmd.OutOrStdout(), summary); encErr != nil {
		return encErr
	}
	return err
}

func runLinks(cmd *cobra.Command, _ []string) error {
	box, err := domain.NewBoundingBox(left, bottom, right, top)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}

	pre, post, err := a.links.UsefulForBox(cmd.Context(), a.event, box, overwrite)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range []struct {
		phase domain.Phase
		set   domain.SourceSet
	}{{domain.PhasePre, pre}, {domain.PhasePost, post}} {
		for _, src := range p.set.Sources {
			if _, err := fmt.Fprintf(out, "%s\t%s\n", p.phase, src.Ref); err != nil {
				return err
			}
		}
	}
	a.logger.Info("useful links", "event", a.event, "box", box.String(), "center", box.Center().String(), "pre", pre.Len(), "post", post.Len())
	return nil
}

func runFootprints(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	pre, post, err := a.links.Sources(cmd.Context(), a.event, overwrite)
	if err != nil {
		return err
	}
	data, err := catalog.Footprints(pre, post).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode footprints: %w", err)
	}

	if outFile == "" {
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(outFile, data, 0o644); err != nil {
		return fmt.Errorf("write footprints: %w", err)
	}
	a.logger.Info("footprints written", "event", a.event, "path", outFile, "features", pre.Len()+post.Len())
	return nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
