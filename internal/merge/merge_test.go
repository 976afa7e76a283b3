package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromap/fountains-server/internal/model"
)

func osmRecord(tags map[string]any) *model.SourceRecord {
	return &model.SourceRecord{
		Source: model.SourceOSM,
		ID:     "node/1",
		Coord:  &model.Coordinate{Lon: 8.54, Lat: 47.37},
		Raw: map[string]any{
			"id":   int64(1),
			"lat":  47.37,
			"lon":  8.54,
			"tags": tags,
		},
	}
}

func wikidataRecord(raw map[string]any) *model.SourceRecord {
	if raw == nil {
		raw = map[string]any{}
	}
	if _, ok := raw["id"]; !ok {
		raw["id"] = "Q100"
	}
	return &model.SourceRecord{
		Source: model.SourceWikidata,
		ID:     "Q100",
		Coord:  &model.Coordinate{Lon: 8.5401, Lat: 47.3701},
		Raw:    raw,
	}
}

func TestMerge_EveryFieldPresent(t *testing.T) {
	f := Merge(osmRecord(map[string]any{"name": "Brunnen"}), nil, "unmatched.osm", nil)

	assert.Len(t, f.Fields, len(model.FieldKeys()))
	for _, key := range model.FieldKeys() {
		fv, ok := f.Fields[key]
		require.True(t, ok, "missing field %s", key)
		assert.Len(t, fv.PerSource, 2, "field %s", key)
	}
}

func TestMerge_PreferenceOrderWins(t *testing.T) {
	osm := osmRecord(map[string]any{
		"name":     "OSM name",
		"operator": "OSM operator",
	})
	wd := wikidataRecord(map[string]any{
		"labels": map[string]any{"en": "Wikidata name"},
		"claims": map[string]any{"P137": "Wikidata operator"},
	})

	f := Merge(osm, wd, "merged by identifier", nil)

	// name prefers OSM.
	name := f.Fields[model.FieldName]
	assert.Equal(t, "OSM name", name.Value)
	assert.Equal(t, model.SourceOSM, name.Winner)
	assert.Equal(t, model.StatusOK, name.Status)

	// operator prefers Wikidata.
	op := f.Fields[model.FieldOperator]
	assert.Equal(t, "Wikidata operator", op.Value)
	assert.Equal(t, model.SourceWikidata, op.Winner)
}

func TestMerge_FallbackWhenPreferredMissing(t *testing.T) {
	osm := osmRecord(map[string]any{}) // no name tag
	wd := wikidataRecord(map[string]any{
		"labels": map[string]any{"en": "Fountain"},
	})

	f := Merge(osm, wd, "merged by location", nil)
	name := f.Fields[model.FieldName]
	assert.Equal(t, "Fountain", name.Value)
	assert.Equal(t, model.StatusOK, name.Status)
	assert.Equal(t, model.SourceWikidata, name.Winner)
	assert.Equal(t, model.StatusNotDefined, name.PerSource[model.SourceOSM])
}

func TestMerge_SchemaFallbackPath(t *testing.T) {
	// labels.en missing, labels.de present: the schema's fallback path fills in.
	wd := wikidataRecord(map[string]any{
		"labels": map[string]any{"de": "Brunnen"},
	})

	f := Merge(nil, wd, "unmatched.wikidata", nil)
	assert.Equal(t, "Brunnen", f.Fields[model.FieldName].Value)
}

func TestMerge_PerSourceStatuses(t *testing.T) {
	osm := osmRecord(map[string]any{"drinking_water": "yes"})

	f := Merge(osm, nil, "unmatched.osm", nil)

	potable := f.Fields[model.FieldPotable]
	assert.Equal(t, true, potable.Value)
	assert.Equal(t, model.StatusOK, potable.PerSource[model.SourceOSM])
	// potable has no Wikidata descriptor at all.
	assert.Equal(t, model.StatusNotAvailable, potable.PerSource[model.SourceWikidata])

	// wikipedia_url is Wikidata-only and that record is absent.
	wiki := f.Fields[model.FieldWikipediaURL]
	assert.Equal(t, model.StatusNotAvailable, wiki.PerSource[model.SourceOSM])
	assert.Equal(t, model.StatusSourceAbsent, wiki.PerSource[model.SourceWikidata])
	assert.Equal(t, model.StatusSourceAbsent, wiki.Status)
	assert.Nil(t, wiki.Value)
}

func TestMerge_StatusOKIffValueNonNil(t *testing.T) {
	osm := osmRecord(map[string]any{
		"name":           "Brunnen",
		"drinking_water": "limited", // vocabulary miss: no data, no error
	})
	wd := wikidataRecord(map[string]any{
		"claims": map[string]any{"P571": "not-a-date"},
	})

	f := Merge(osm, wd, "merged by identifier", nil)
	for key, fv := range f.Fields {
		if fv.Status == model.StatusOK {
			assert.NotNil(t, fv.Value, "field %s OK with nil value", key)
			assert.NotEmpty(t, fv.Winner, "field %s OK without winner", key)
		} else {
			assert.Nil(t, fv.Value, "field %s not OK with value", key)
		}
	}
}

func TestMerge_TranslateErrorDegradesOneField(t *testing.T) {
	wd := wikidataRecord(map[string]any{
		"labels": map[string]any{"en": "Fountain"},
		"claims": map[string]any{"P571": "ancient"}, // unparseable date
	})

	f := Merge(nil, wd, "unmatched.wikidata", nil)

	constructed := f.Fields[model.FieldConstructed]
	assert.Equal(t, model.StatusError, constructed.PerSource[model.SourceWikidata])
	assert.Equal(t, model.StatusError, constructed.Status)
	require.NotEmpty(t, constructed.Comments)
	assert.Contains(t, constructed.Comments[0], "no year")

	// The failure never leaks into sibling fields.
	assert.Equal(t, model.StatusOK, f.Fields[model.FieldName].Status)
	assert.Equal(t, "Fountain", f.Fields[model.FieldName].Value)
}

func TestMerge_GalleryAccumulatesAndDedupes(t *testing.T) {
	osm := osmRecord(map[string]any{"image": "Fountain_front.jpg"})
	wd := wikidataRecord(map[string]any{
		"claims": map[string]any{
			"P18": []any{"Fountain front.jpg", "Fountain back.jpg"},
		},
	})

	f := Merge(osm, wd, "merged by identifier", nil)

	gallery := f.Fields[model.FieldGallery]
	require.Equal(t, model.StatusOK, gallery.Status)
	// Wikidata is preferred, so its spelling leads; the OSM duplicate
	// (underscore variant of the same file) is dropped.
	assert.Equal(t, []string{"Fountain front.jpg", "Fountain back.jpg"}, gallery.Value)
	assert.Equal(t, model.SourceWikidata, gallery.Winner)
}

func TestMerge_GalleryUnionKeepsDistinctImages(t *testing.T) {
	osm := osmRecord(map[string]any{"image": "osm_only.jpg"})
	wd := wikidataRecord(map[string]any{
		"claims": map[string]any{"P18": []any{"wd_only.jpg"}},
	})

	f := Merge(osm, wd, "merged by location", nil)
	assert.Equal(t, []string{"wd_only.jpg", "osm_only.jpg"}, f.Fields[model.FieldGallery].Value)
}

func TestMerge_CoordinatePrefersOSM(t *testing.T) {
	osm := osmRecord(nil)
	wd := wikidataRecord(nil)

	f := Merge(osm, wd, "merged by identifier", nil)
	require.NotNil(t, f.Coord)
	assert.Equal(t, *osm.Coord, *f.Coord)

	f = Merge(nil, wd, "unmatched.wikidata", nil)
	require.NotNil(t, f.Coord)
	assert.Equal(t, *wd.Coord, *f.Coord)
}

func TestMerge_PureApartFromMergeDate(t *testing.T) {
	osm := osmRecord(map[string]any{"name": "Brunnen", "image": "a.jpg"})
	wd := wikidataRecord(map[string]any{
		"labels": map[string]any{"en": "Fountain"},
	})
	dist := 4.2

	a := Merge(osm, wd, "merged by location", &dist)
	b := Merge(osm, wd, "merged by location", &dist)

	a.MergeDate = b.MergeDate
	assert.Equal(t, a, b)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	tags := map[string]any{"name": "Brunnen"}
	osm := osmRecord(tags)

	Merge(osm, nil, "unmatched.osm", nil)
	assert.Equal(t, map[string]any{"name": "Brunnen"}, tags)
}

func TestDedupeKey(t *testing.T) {
	assert.Equal(t, dedupeKey("Fountain_Front.jpg"), dedupeKey("fountain front.jpg"))
	assert.NotEqual(t, dedupeKey("a.jpg"), dedupeKey("b.jpg"))
}
