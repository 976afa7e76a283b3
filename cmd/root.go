package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hydromap/fountains-server/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fountains",
	Short: "Drinking-fountain aggregation server",
	Long:  "Fetches drinking-water fountains from OpenStreetMap and Wikidata, conflates them into one record per fountain, and serves the merged collection from a tiled TTL cache.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
