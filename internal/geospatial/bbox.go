// Package geospatial provides the fixed-grid tile index and the TTL-driven
// tile cache that back geographic fountain queries.
package geospatial

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hydromap/fountains-server/internal/model"
)

// BBox represents a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether the coordinate lies inside the box (inclusive).
func (b BBox) Contains(c model.Coordinate) bool {
	return c.Lon >= b.MinLng && c.Lon <= b.MaxLng &&
		c.Lat >= b.MinLat && c.Lat <= b.MaxLat
}

// Validate checks corner ordering and coordinate ranges.
func (b BBox) Validate() error {
	if b.MinLng > b.MaxLng || b.MinLat > b.MaxLat {
		return eris.Errorf("bbox: min corner exceeds max corner: %+v", b)
	}
	if b.MinLng < -180 || b.MaxLng > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return eris.Errorf("bbox: out of range: %+v", b)
	}
	return nil
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("bbox: expected 4 comma-separated values, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(err, "bbox: parse %q", p)
		}
		vals[i] = v
	}
	box := BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}
	if err := box.Validate(); err != nil {
		return BBox{}, err
	}
	return box, nil
}
