// Package conflate matches fountain records across the OSM and Wikidata
// collections and feeds matched pairs and unmatched singletons through the
// merge engine.
package conflate

import (
	"go.uber.org/zap"

	"github.com/hydromap/fountains-server/internal/merge"
	"github.com/hydromap/fountains-server/internal/model"
)

// MatchRadiusMeters is the strict upper bound for the coordinate pass: two
// records exactly this far apart do not match.
const MatchRadiusMeters = 10.0

// Merge notes attached by the conflator.
const (
	NoteMergedByIdentifier = "merged by identifier"
	NoteMergedByLocation   = "merged by location"
	NoteUnmatchedOSM       = "unmatched.osm"
	NoteUnmatchedWikidata  = "unmatched.wikidata"
)

// Sentinel identifiers for records lacking a shared-namespace id. The two
// sides use different sentinels so that two id-less records never match.
const (
	missingIDOSM      = "0"
	missingIDWikidata = "1"
)

// Conflate matches records between the two collections and returns one
// merged Fountain per real-world fountain candidate: identifier matches
// first, then nearest-coordinate matches under MatchRadiusMeters, then all
// leftovers as single-source records. Input slices are not mutated and no
// input record contributes to more than one output.
func Conflate(osmRecords, wikidataRecords []model.SourceRecord) []model.Fountain {
	log := zap.L().With(zap.String("component", "conflator"))

	// Working sets; matched records are struck out as passes proceed.
	osmUsed := make([]bool, len(osmRecords))
	wdUsed := make([]bool, len(wikidataRecords))

	out := make([]model.Fountain, 0, len(osmRecords)+len(wikidataRecords))
	var byID, byLocation int

	// Pass 1: shared-identifier match. An OSM record's wikidata tag is
	// compared against each remaining Wikidata record's native QID; the
	// first occurrence in the remaining working set wins.
	for i := range osmRecords {
		aID := crossRefID(osmRecords[i])
		for j := range wikidataRecords {
			if wdUsed[j] {
				continue
			}
			if aID != nativeID(wikidataRecords[j]) {
				continue
			}
			dist := distanceBetween(osmRecords[i], wikidataRecords[j])
			out = append(out, merge.Merge(&osmRecords[i], &wikidataRecords[j], NoteMergedByIdentifier, dist))
			osmUsed[i] = true
			wdUsed[j] = true
			byID++
			break
		}
	}

	// Pass 2: nearest-coordinate match under the threshold. Ties go to the
	// lowest remaining Wikidata index, which keeps the pass deterministic
	// for a fixed input order. Nearest-only: multiple candidates inside the
	// radius raise no ambiguity signal.
	for i := range osmRecords {
		if osmUsed[i] {
			continue
		}
		best := -1
		var bestDist float64
		for j := range wikidataRecords {
			if wdUsed[j] {
				continue
			}
			d := distanceBetween(osmRecords[i], wikidataRecords[j])
			if d == nil {
				continue
			}
			if best == -1 || *d < bestDist {
				best = j
				bestDist = *d
			}
		}
		if best == -1 || bestDist >= MatchRadiusMeters {
			continue
		}
		d := bestDist
		out = append(out, merge.Merge(&osmRecords[i], &wikidataRecords[best], NoteMergedByLocation, &d))
		osmUsed[i] = true
		wdUsed[best] = true
		byLocation++
	}

	// Pass 3: leftovers keep their single-source data.
	for i := range osmRecords {
		if !osmUsed[i] {
			out = append(out, merge.Merge(&osmRecords[i], nil, NoteUnmatchedOSM, nil))
		}
	}
	for j := range wikidataRecords {
		if !wdUsed[j] {
			out = append(out, merge.Merge(nil, &wikidataRecords[j], NoteUnmatchedWikidata, nil))
		}
	}

	log.Debug("conflation complete",
		zap.Int("osm", len(osmRecords)),
		zap.Int("wikidata", len(wikidataRecords)),
		zap.Int("matched_by_identifier", byID),
		zap.Int("matched_by_location", byLocation),
		zap.Int("merged_total", len(out)),
	)
	return out
}

// crossRefID returns the OSM record's wikidata tag, or the OSM-side
// sentinel when the tag is missing.
func crossRefID(rec model.SourceRecord) string {
	v := model.ValueAtPath(rec.Raw, "tags.wikidata")
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return missingIDOSM
}

// nativeID returns the Wikidata record's QID, or the Wikidata-side sentinel
// when missing.
func nativeID(rec model.SourceRecord) string {
	if rec.ID != "" {
		return rec.ID
	}
	return missingIDWikidata
}
