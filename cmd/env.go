package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hydromap/fountains-server/internal/config"
	"github.com/hydromap/fountains-server/internal/geospatial"
	"github.com/hydromap/fountains-server/internal/processing"
	"github.com/hydromap/fountains-server/internal/resilience"
	"github.com/hydromap/fountains-server/internal/sources"
	"github.com/hydromap/fountains-server/internal/store"
)

// env holds the wired pipeline shared by the serve and refresh commands.
type env struct {
	Cache     *geospatial.TileCache
	Processor *processing.Processor
	Snapshots store.Store
}

func (e *env) Close() {
	if e.Snapshots != nil {
		if err := e.Snapshots.Close(); err != nil {
			zap.L().Warn("close snapshot store", zap.Error(err))
		}
	}
}

// initEnv builds the adapters, cache, snapshot store, and processor from
// the loaded configuration.
func initEnv(ctx context.Context) (*env, error) {
	snapshots, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := snapshots.Migrate(ctx); err != nil {
		snapshots.Close() //nolint:errcheck
		return nil, err
	}

	osm := sources.NewOSM(adapterOptions(cfg.OSM))
	wikidata := sources.NewWikidata(adapterOptions(cfg.Wikidata))

	cache := geospatial.NewTileCache(time.Duration(cfg.Cache.SweepSecs) * time.Second)
	ttls := geospatial.ArtifactTTLs{
		Full:      time.Duration(cfg.Cache.FullTTLSecs) * time.Second,
		Essential: time.Duration(cfg.Cache.EssentialTTLSecs) * time.Second,
		Errors:    time.Duration(cfg.Cache.ErrorsTTLSecs) * time.Second,
	}

	proc := processing.NewProcessor(osm, wikidata, cache, snapshots, ttls)

	return &env{
		Cache:     cache,
		Processor: proc,
		Snapshots: snapshots,
	}, nil
}

func adapterOptions(c config.SourceConfig) sources.Options {
	retry := resilience.DefaultRetryConfig()
	if c.MaxRetries > 0 {
		retry.MaxAttempts = c.MaxRetries
	}
	return sources.Options{
		BaseURL:    c.URL,
		UserAgent:  c.UserAgent,
		Timeout:    c.Timeout(),
		RatePerSec: c.RatePerSec,
		Burst:      c.Burst,
		Retry:      retry,
	}
}
