package conflate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromap/fountains-server/internal/model"
)

func TestHaversine(t *testing.T) {
	zurich := model.Coordinate{Lon: 8.5417, Lat: 47.3769}

	// Identity.
	assert.Equal(t, 0.0, Haversine(zurich, zurich))

	// One degree of latitude is about 111.2 km everywhere.
	oneDegNorth := model.Coordinate{Lon: 8.5417, Lat: 48.3769}
	assert.InDelta(t, 111195, Haversine(zurich, oneDegNorth), 100)

	// Symmetry.
	other := model.Coordinate{Lon: 8.55, Lat: 47.38}
	assert.InDelta(t, Haversine(zurich, other), Haversine(other, zurich), 1e-9)

	// A small offset at this latitude: ~0.0001 deg lat is ~11.1 m.
	near := model.Coordinate{Lon: 8.5417, Lat: 47.3770}
	assert.InDelta(t, 11.1, Haversine(zurich, near), 0.2)
}

func TestDistanceBetween_MissingCoordinates(t *testing.T) {
	withCoord := model.SourceRecord{Coord: &model.Coordinate{Lon: 8.54, Lat: 47.37}}
	without := model.SourceRecord{}

	assert.Nil(t, distanceBetween(withCoord, without))
	assert.Nil(t, distanceBetween(without, withCoord))
	assert.Nil(t, distanceBetween(without, without))

	d := distanceBetween(withCoord, withCoord)
	require.NotNil(t, d)
	assert.Equal(t, 0.0, *d)
}
