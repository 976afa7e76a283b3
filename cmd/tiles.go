package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hydromap/fountains-server/internal/geospatial"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles <bbox>",
	Short: "Print the tiles covering a bounding box",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		box, err := geospatial.ParseBBox(args[0])
		if err != nil {
			return err
		}
		tiles := geospatial.TilesCovering(box)
		for _, t := range tiles {
			fmt.Println(t.Key())
		}
		fmt.Printf("%d tiles\n", len(tiles))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tilesCmd)
}
