package processing

import (
	"github.com/hydromap/fountains-server/internal/conflate"
	"github.com/hydromap/fountains-server/internal/model"
)

// ReuseRadiusMeters bounds the proximity re-match when carrying ids from a
// tile's previous collection to its refreshed one. It is deliberately wider
// than the conflation radius: after a refresh both sides are already merged
// records, and a fountain nudged by an upstream edit should keep its id.
const ReuseRadiusMeters = 15.0

// AssignIDs gives every fountain in next a positive id. A fountain that
// re-matches one from prev, first by Wikidata QID and then by nearest
// coordinate under ReuseRadiusMeters, keeps the previous id; the rest are
// numbered upward from the highest id ever seen in prev. With prev nil this
// is the initial numbering 1..n.
func AssignIDs(prev, next []model.Fountain) {
	used := make([]bool, len(prev))
	maxID := int64(0)
	for _, f := range prev {
		if f.ID > maxID {
			maxID = f.ID
		}
	}

	assigned := make([]bool, len(next))

	// Pass 1: identifier re-match.
	for i := range next {
		qid := fountainQID(next[i])
		if qid == "" {
			continue
		}
		for j := range prev {
			if used[j] || fountainQID(prev[j]) != qid {
				continue
			}
			next[i].ID = prev[j].ID
			assigned[i] = true
			used[j] = true
			break
		}
	}

	// Pass 2: nearest-coordinate re-match.
	for i := range next {
		if assigned[i] || next[i].Coord == nil {
			continue
		}
		best := -1
		var bestDist float64
		for j := range prev {
			if used[j] || prev[j].Coord == nil {
				continue
			}
			d := conflate.Haversine(*next[i].Coord, *prev[j].Coord)
			if best == -1 || d < bestDist {
				best = j
				bestDist = d
			}
		}
		if best == -1 || bestDist >= ReuseRadiusMeters {
			continue
		}
		next[i].ID = prev[best].ID
		assigned[i] = true
		used[best] = true
	}

	// Pass 3: fresh ids for everything else.
	for i := range next {
		if !assigned[i] {
			maxID++
			next[i].ID = maxID
		}
	}
}

// fountainQID returns the merged record's Wikidata QID, or "" when the
// field did not resolve.
func fountainQID(f model.Fountain) string {
	fv, ok := f.Fields[model.FieldWikidataQID]
	if !ok || fv.Status != model.StatusOK {
		return ""
	}
	qid, _ := fv.Value.(string)
	return qid
}
