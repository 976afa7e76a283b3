// Package merge implements the per-field merge of one OSM record and one
// Wikidata record (either possibly absent) into a canonical Fountain.
package merge

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/hydromap/fountains-server/internal/model"
)

// Merge produces one Fountain from a pair of (possibly nil) source records.
// Every field in the schema is resolved independently: a failing translate
// degrades that one field to StatusError and never aborts the rest.
// Apart from MergeDate the result is a pure function of the inputs and the
// static schema.
func Merge(osm, wikidata *model.SourceRecord, mergeNotes string, mergeDistance *float64) model.Fountain {
	f := model.Fountain{
		Fields:        make(map[model.FieldKey]model.FieldValue, len(model.FieldKeys())),
		MergeNotes:    mergeNotes,
		MergeDistance: mergeDistance,
		MergeDate:     time.Now().UTC(),
	}

	records := map[model.Source]*model.SourceRecord{
		model.SourceOSM:      osm,
		model.SourceWikidata: wikidata,
	}

	for _, key := range model.FieldKeys() {
		fm := model.Schema()[key]
		f.Fields[key] = mergeField(fm, records)
	}

	// The OSM geometry is the more precise of the two; fall back to the
	// Wikidata coordinate for Wikidata-only fountains.
	if osm != nil && osm.Coord != nil {
		c := *osm.Coord
		f.Coord = &c
	} else if wikidata != nil && wikidata.Coord != nil {
		c := *wikidata.Coord
		f.Coord = &c
	}

	return f
}

// mergeField resolves a single schema field across both sources.
func mergeField(fm model.FieldMetadata, records map[model.Source]*model.SourceRecord) model.FieldValue {
	fv := model.FieldValue{
		Status:    model.StatusNotDefined,
		PerSource: make(map[model.Source]model.Status, 2),
	}
	candidates := make(map[model.Source]any, 2)

	for _, src := range []model.Source{model.SourceOSM, model.SourceWikidata} {
		spec, ok := fm.BySource[src]
		if !ok {
			fv.PerSource[src] = model.StatusNotAvailable
			continue
		}
		rec := records[src]
		if rec == nil {
			fv.PerSource[src] = model.StatusSourceAbsent
			continue
		}

		val, err := extract(spec, rec.Raw)
		if err != nil {
			fv.PerSource[src] = model.StatusError
			fv.Comments = append(fv.Comments, fmt.Sprintf("%s: %s: %v", src, fm.Name, err))
			zap.L().Warn("field extraction failed",
				zap.String("component", "merge"),
				zap.String("field", string(fm.Name)),
				zap.String("source", string(src)),
				zap.String("record", rec.ID),
				zap.Error(err),
			)
			continue
		}
		if val == nil {
			fv.PerSource[src] = model.StatusNotDefined
			continue
		}
		fv.PerSource[src] = model.StatusOK
		candidates[src] = val
	}

	if fm.Accumulate {
		resolveAccumulated(fm, &fv, candidates)
	} else {
		resolvePreferred(fm, &fv, candidates)
	}
	return fv
}

// extract reads the raw value at the descriptor's path (falling back to the
// secondary path) and applies the translate function. A panicking translate
// is reported as an error, not propagated.
func extract(spec model.ExtractionSpec, raw map[string]any) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = fmt.Errorf("translate panic: %v", r)
		}
	}()

	rv := model.ValueAtPath(raw, spec.Path)
	if rv == nil && spec.Fallback != "" {
		rv = model.ValueAtPath(raw, spec.Fallback)
	}
	if rv == nil {
		return nil, nil
	}
	if spec.Translate == nil {
		return rv, nil
	}
	return spec.Translate(rv)
}

// resolvePreferred walks the preference order; the first source with an OK
// extraction wins. When none is OK the field stays null and carries the
// status of the most-preferred source.
func resolvePreferred(fm model.FieldMetadata, fv *model.FieldValue, candidates map[model.Source]any) {
	for _, src := range fm.Preference {
		if fv.PerSource[src] == model.StatusOK {
			fv.Value = candidates[src]
			fv.Status = model.StatusOK
			fv.Winner = src
			return
		}
	}
	fv.Status = fv.PerSource[fm.Preference[0]]
}

// resolveAccumulated unions candidate lists from both sources instead of
// picking a single winner, deduplicating by a normalized value key. The
// winner source is the most-preferred source that contributed.
func resolveAccumulated(fm model.FieldMetadata, fv *model.FieldValue, candidates map[model.Source]any) {
	var union []string
	seen := make(map[string]bool)
	for _, src := range fm.Preference {
		list, ok := candidates[src].([]string)
		if !ok {
			continue
		}
		for _, v := range list {
			k := dedupeKey(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			union = append(union, v)
		}
	}

	if len(union) == 0 {
		fv.Status = fv.PerSource[fm.Preference[0]]
		return
	}
	fv.Value = union
	fv.Status = model.StatusOK
	for _, src := range fm.Preference {
		if fv.PerSource[src] == model.StatusOK {
			fv.Winner = src
			break
		}
	}
}

// dedupeKey normalizes a gallery value for duplicate detection. Commons
// file names arrive with mixed unicode forms and underscore/space variants.
func dedupeKey(v string) string {
	s := norm.NFC.String(v)
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToLower(strings.TrimSpace(s))
}
