package processing

import (
	"github.com/hydromap/fountains-server/internal/model"
)

// DeriveEssential projects a merged collection down to the map-display
// shape: id, coordinate, and only the fields the schema flags essential.
func DeriveEssential(fountains []model.Fountain) []model.EssentialFountain {
	schema := model.Schema()

	out := make([]model.EssentialFountain, 0, len(fountains))
	for _, f := range fountains {
		fields := make(map[model.FieldKey]model.FieldValue)
		for key, fv := range f.Fields {
			if schema[key].Essential {
				fields[key] = fv
			}
		}
		out = append(out, model.EssentialFountain{
			ID:     f.ID,
			Coord:  f.Coord,
			Fields: fields,
		})
	}
	return out
}

// ExtractIssues flattens every field's accumulated issue list across the
// collection. Merge and conflation write to Comments, never here; issues
// come from downstream enrichment steps.
func ExtractIssues(fountains []model.Fountain) []model.Issue {
	issues := make([]model.Issue, 0)
	for _, f := range fountains {
		for _, key := range model.FieldKeys() {
			fv, ok := f.Fields[key]
			if !ok {
				continue
			}
			issues = append(issues, fv.Issues...)
		}
	}
	return issues
}
