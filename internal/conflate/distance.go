package conflate

import (
	"math"

	"github.com/hydromap/fountains-server/internal/model"
)

const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance between two coordinates in
// meters.
func Haversine(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// distanceBetween returns the distance between two records, or nil when
// either side lacks a coordinate. A missing coordinate is "no distance
// available", never an abort.
func distanceBetween(a, b model.SourceRecord) *float64 {
	if a.Coord == nil || b.Coord == nil {
		return nil
	}
	d := Haversine(*a.Coord, *b.Coord)
	return &d
}
