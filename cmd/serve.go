package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hydromap/fountains-server/internal/config"
	"github.com/hydromap/fountains-server/internal/geospatial"
	"github.com/hydromap/fountains-server/internal/processing"
	"github.com/hydromap/fountains-server/internal/resilience"
	"github.com/hydromap/fountains-server/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fountain query API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Boot.RestoreSnapshots {
			if err := env.Processor.PrimeFromSnapshots(ctx); err != nil {
				zap.L().Warn("snapshot restore failed, starting cold", zap.Error(err))
			}
		}

		go env.Cache.Start(ctx)

		if cfg.Boot.Prepopulate {
			go prepopulate(ctx, env.Processor, cfg.Boot)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		return server.New(env.Processor, port).Run(ctx)
	},
}

// prepopulate walks the configured regions sequentially, pausing between
// them; a rate-limited source stretches the pause by its retry-after hint.
func prepopulate(ctx context.Context, proc *processing.Processor, boot config.BootConfig) {
	log := zap.L().With(zap.String("component", "prepopulate"))

	regions, err := config.LoadRegions(boot.RegionsPath)
	if err != nil {
		log.Warn("cannot load regions, skipping prepopulation", zap.Error(err))
		return
	}

	delay := time.Duration(boot.RegionDelaySecs) * time.Second
	for i, region := range regions {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		box := geospatial.BBox{
			MinLng: region.MinLng, MinLat: region.MinLat,
			MaxLng: region.MaxLng, MaxLat: region.MaxLat,
		}
		start := time.Now()
		if err := proc.PopulateBBox(ctx, box); err != nil {
			log.Warn("region population failed",
				zap.String("region", region.Name),
				zap.Error(err),
			)
			if hint := resilience.RetryAfterHint(err); hint > delay {
				delay = hint
			}
			continue
		}
		delay = time.Duration(boot.RegionDelaySecs) * time.Second
		log.Info("region populated",
			zap.String("region", region.Name),
			zap.Duration("took", time.Since(start)),
		)
	}
	log.Info("prepopulation complete", zap.Int("regions", len(regions)))
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
