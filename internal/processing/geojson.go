package processing

import (
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/hydromap/fountains-server/internal/model"
)

// GeoJSON renders the essential projection as a FeatureCollection: one
// point feature per fountain, with the resolved essential values as
// properties. Records without a coordinate cannot be features and are
// skipped.
func GeoJSON(essentials []model.EssentialFountain) *geojson.FeatureCollection {
	features := make([]*geojson.Feature, 0, len(essentials))
	for _, e := range essentials {
		if e.Coord == nil {
			continue
		}

		props := make(map[string]any, len(e.Fields))
		for key, fv := range e.Fields {
			if fv.Status != model.StatusOK {
				continue
			}
			props[string(key)] = fv.Value
		}

		features = append(features, &geojson.Feature{
			ID:         strconv.FormatInt(e.ID, 10),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{e.Coord.Lon, e.Coord.Lat}),
			Properties: props,
		})
	}
	return &geojson.FeatureCollection{Features: features}
}
