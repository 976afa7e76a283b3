package geospatial

import (
	"fmt"
	"math"

	"github.com/hydromap/fountains-server/internal/model"
	"github.com/hydromap/fountains-server/internal/resilience"
)

// TileSize is the angular extent of a tile in degrees on both axes. Tiles
// are disjoint-abutting and exhaustively cover the plane; the tile holding
// a coordinate is a pure function of that coordinate.
const TileSize = 0.05

// keyEpsilon guards the covering iteration against accumulated float error
// on tile boundaries.
const keyEpsilon = 1e-9

// Tile is one fixed-size grid cell, addressed by its minimum corner.
type Tile struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
}

// TileOf returns the tile containing the coordinate. Rounding is floor, not
// truncate, so tiling stays consistent across the equator and meridian.
func TileOf(c model.Coordinate) Tile {
	return Tile{
		MinLng: math.Floor(c.Lon/TileSize) * TileSize,
		MinLat: math.Floor(c.Lat/TileSize) * TileSize,
	}
}

// Bounds returns the tile's bounding box.
func (t Tile) Bounds() BBox {
	return BBox{
		MinLng: t.MinLng,
		MinLat: t.MinLat,
		MaxLng: t.MinLng + TileSize,
		MaxLat: t.MinLat + TileSize,
	}
}

// Key returns the cache key for the tile: fixed two-decimal corners, coarse
// enough that float jitter never yields two keys for the same tile.
func (t Tile) Key() string {
	return fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", t.MinLng, t.MinLat, t.MinLng+TileSize, t.MinLat+TileSize)
}

// ParseTileKey reconstructs a Tile from its cache key.
func ParseTileKey(key string) (Tile, error) {
	var minLng, minLat, maxLng, maxLat float64
	n, err := fmt.Sscanf(key, "%f,%f,%f,%f", &minLng, &minLat, &maxLng, &maxLat)
	if err != nil || n != 4 {
		return Tile{}, resilience.IllegalStatef("malformed tile key %q", key)
	}
	return Tile{MinLng: minLng, MinLat: minLat}, nil
}

// TilesCovering returns every tile intersecting the box, row by row from
// the tile containing the minimum corner up to and including the one
// containing the maximum. The list is non-empty even for a point box.
func TilesCovering(box BBox) []Tile {
	start := TileOf(model.Coordinate{Lon: box.MinLng, Lat: box.MinLat})

	var tiles []Tile
	for i := 0; ; i++ {
		lng := start.MinLng + float64(i)*TileSize
		if lng > box.MaxLng+keyEpsilon {
			break
		}
		for j := 0; ; j++ {
			lat := start.MinLat + float64(j)*TileSize
			if lat > box.MaxLat+keyEpsilon {
				break
			}
			tiles = append(tiles, Tile{MinLng: lng, MinLat: lat})
		}
	}
	return tiles
}

// BoundsOfTiles returns the aggregate bounding box of a tile set.
func BoundsOfTiles(tiles []Tile) (BBox, error) {
	if len(tiles) == 0 {
		return BBox{}, resilience.IllegalStatef("bounds of empty tile list")
	}
	box := tiles[0].Bounds()
	for _, t := range tiles[1:] {
		b := t.Bounds()
		box.MinLng = math.Min(box.MinLng, b.MinLng)
		box.MinLat = math.Min(box.MinLat, b.MinLat)
		box.MaxLng = math.Max(box.MaxLng, b.MaxLng)
		box.MaxLat = math.Max(box.MaxLat, b.MaxLat)
	}
	return box, nil
}
