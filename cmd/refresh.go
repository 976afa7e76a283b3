package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hydromap/fountains-server/internal/config"
	"github.com/hydromap/fountains-server/internal/geospatial"
)

var (
	refreshBBox    string
	refreshRegions string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Populate tiles once and persist the snapshots",
	Long:  "Fetches, conflates, and stores every tile covering the given bounding box (or each region in a regions file), then exits. Useful for warming the snapshot store before the first serve.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if (refreshBBox == "") == (refreshRegions == "") {
			return eris.New("exactly one of --bbox or --regions is required")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if refreshBBox != "" {
			box, err := geospatial.ParseBBox(refreshBBox)
			if err != nil {
				return err
			}
			return env.Processor.PopulateBBox(ctx, box)
		}

		regions, err := config.LoadRegions(refreshRegions)
		if err != nil {
			return err
		}
		delay := time.Duration(cfg.Boot.RegionDelaySecs) * time.Second
		for i, region := range regions {
			if i > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
			box := geospatial.BBox{
				MinLng: region.MinLng, MinLat: region.MinLat,
				MaxLng: region.MaxLng, MaxLat: region.MaxLat,
			}
			if err := env.Processor.PopulateBBox(ctx, box); err != nil {
				return eris.Wrapf(err, "populate region %s", region.Name)
			}
			zap.L().Info("region refreshed", zap.String("region", region.Name))
		}
		return nil
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshBBox, "bbox", "", "bounding box minLng,minLat,maxLng,maxLat")
	refreshCmd.Flags().StringVar(&refreshRegions, "regions", "", "path to a regions YAML file")
	rootCmd.AddCommand(refreshCmd)
}
