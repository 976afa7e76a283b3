package conflate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromap/fountains-server/internal/model"
)

// metersPerDegreeLat converts a northward offset in meters to degrees of
// latitude; a pure-latitude offset makes the haversine distance exact.
const metersPerDegreeLat = earthRadiusMeters * math.Pi / 180

func osmAt(id string, lon, lat float64, wikidataTag string) model.SourceRecord {
	tags := map[string]any{"amenity": "drinking_water"}
	if wikidataTag != "" {
		tags["wikidata"] = wikidataTag
	}
	return model.SourceRecord{
		Source: model.SourceOSM,
		ID:     id,
		Coord:  &model.Coordinate{Lon: lon, Lat: lat},
		Raw:    map[string]any{"tags": tags},
	}
}

func wdAt(qid string, lon, lat float64) model.SourceRecord {
	return model.SourceRecord{
		Source: model.SourceWikidata,
		ID:     qid,
		Coord:  &model.Coordinate{Lon: lon, Lat: lat},
		Raw:    map[string]any{"id": qid},
	}
}

func notesOf(fountains []model.Fountain) []string {
	notes := make([]string, len(fountains))
	for i, f := range fountains {
		notes[i] = f.MergeNotes
	}
	return notes
}

func TestConflate_IdentifierBeatsDistance(t *testing.T) {
	// ~13 m apart: outside the coordinate radius, but the shared identifier
	// matches them anyway.
	lat := 47.37
	osm := osmAt("node/1", 8.54, lat, "Q7")
	wd := wdAt("Q7", 8.54, lat+13.0/metersPerDegreeLat)

	out := Conflate([]model.SourceRecord{osm}, []model.SourceRecord{wd})

	require.Len(t, out, 1)
	assert.Equal(t, NoteMergedByIdentifier, out[0].MergeNotes)
	require.NotNil(t, out[0].MergeDistance)
	assert.InDelta(t, 13.0, *out[0].MergeDistance, 0.01)
}

func TestConflate_CoordinateRadiusIsStrict(t *testing.T) {
	tests := []struct {
		name    string
		offsetM float64
		matched bool
	}{
		{name: "well inside", offsetM: 5.0, matched: true},
		{name: "just inside", offsetM: 9.9, matched: true},
		{name: "a hair inside", offsetM: 9.999, matched: true},
		{name: "at the radius", offsetM: 10.0, matched: false},
		{name: "just outside", offsetM: 10.1, matched: false},
		{name: "far outside", offsetM: 50.0, matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat := 47.37
			osm := osmAt("node/1", 8.54, lat, "")
			wd := wdAt("Q7", 8.54, lat+tt.offsetM/metersPerDegreeLat)

			out := Conflate([]model.SourceRecord{osm}, []model.SourceRecord{wd})

			if tt.matched {
				require.Len(t, out, 1)
				assert.Equal(t, NoteMergedByLocation, out[0].MergeNotes)
				require.NotNil(t, out[0].MergeDistance)
				assert.InDelta(t, tt.offsetM, *out[0].MergeDistance, 0.01)
			} else {
				require.Len(t, out, 2)
				assert.ElementsMatch(t, []string{NoteUnmatchedOSM, NoteUnmatchedWikidata}, notesOf(out))
			}
		})
	}
}

func TestConflate_NearestCandidateWins(t *testing.T) {
	lat := 47.37
	osm := osmAt("node/1", 8.54, lat, "")
	far := wdAt("Q1", 8.54, lat+8.0/metersPerDegreeLat)
	near := wdAt("Q2", 8.54, lat+3.0/metersPerDegreeLat)

	out := Conflate([]model.SourceRecord{osm}, []model.SourceRecord{far, near})

	require.Len(t, out, 2)
	merged := out[0]
	assert.Equal(t, NoteMergedByLocation, merged.MergeNotes)
	assert.Equal(t, "Q2", merged.Fields[model.FieldWikidataQID].Value)
	assert.Equal(t, NoteUnmatchedWikidata, out[1].MergeNotes)
}

func TestConflate_TieGoesToLowestIndex(t *testing.T) {
	lat := 47.37
	osm := osmAt("node/1", 8.54, lat, "")
	// Two candidates at exactly the same spot, hence the same distance.
	a := wdAt("Q1", 8.54, lat+4.0/metersPerDegreeLat)
	b := wdAt("Q2", 8.54, lat+4.0/metersPerDegreeLat)

	out := Conflate([]model.SourceRecord{osm}, []model.SourceRecord{a, b})

	require.Len(t, out, 2)
	assert.Equal(t, "Q1", out[0].Fields[model.FieldWikidataQID].Value)
}

func TestConflate_NoRecordUsedTwice(t *testing.T) {
	lat := 47.37
	// Two OSM nodes both within radius of a single Wikidata item.
	osm1 := osmAt("node/1", 8.54, lat, "")
	osm2 := osmAt("node/2", 8.54, lat+2.0/metersPerDegreeLat, "")
	wd := wdAt("Q7", 8.54, lat+1.0/metersPerDegreeLat)

	out := Conflate([]model.SourceRecord{osm1, osm2}, []model.SourceRecord{wd})

	require.Len(t, out, 2)
	assert.Equal(t, NoteMergedByLocation, out[0].MergeNotes)
	assert.Equal(t, NoteUnmatchedOSM, out[1].MergeNotes)
}

func TestConflate_MissingIdentifiersNeverMatch(t *testing.T) {
	// Neither record carries a shared-namespace id and they are far apart:
	// the sentinel defaults must not identifier-match them.
	osm := osmAt("node/1", 8.54, 47.37, "")
	wd := wdAt("", 9.00, 48.00)
	wd.Raw = map[string]any{}

	out := Conflate([]model.SourceRecord{osm}, []model.SourceRecord{wd})

	require.Len(t, out, 2)
	assert.ElementsMatch(t, []string{NoteUnmatchedOSM, NoteUnmatchedWikidata}, notesOf(out))
}

func TestConflate_LeftoversPreserved(t *testing.T) {
	osm := []model.SourceRecord{
		osmAt("node/1", 8.54, 47.37, "Q7"),
		osmAt("node/2", 8.60, 47.40, ""),
	}
	wd := []model.SourceRecord{
		wdAt("Q7", 8.55, 47.38),
		wdAt("Q8", 9.00, 48.00),
	}

	out := Conflate(osm, wd)

	require.Len(t, out, 3)
	assert.Equal(t, []string{
		NoteMergedByIdentifier,
		NoteUnmatchedOSM,
		NoteUnmatchedWikidata,
	}, notesOf(out))
}

func TestConflate_InputsNotMutated(t *testing.T) {
	osm := []model.SourceRecord{osmAt("node/1", 8.54, 47.37, "Q7")}
	wd := []model.SourceRecord{wdAt("Q7", 8.54, 47.37)}
	osmCopy := osmAt("node/1", 8.54, 47.37, "Q7")
	wdCopy := wdAt("Q7", 8.54, 47.37)

	Conflate(osm, wd)

	assert.Equal(t, osmCopy, osm[0])
	assert.Equal(t, wdCopy, wd[0])
}

func TestConflate_EmptyInputs(t *testing.T) {
	out := Conflate(nil, nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)

	out = Conflate(nil, []model.SourceRecord{wdAt("Q7", 8.54, 47.37)})
	require.Len(t, out, 1)
	assert.Equal(t, NoteUnmatchedWikidata, out[0].MergeNotes)
}
