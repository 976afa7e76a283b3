package processing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromap/fountains-server/internal/model"
)

func TestDeriveEssential(t *testing.T) {
	f := fountainAt(4, 8.54, 47.37, "Q42")
	f.Fields[model.FieldName] = model.FieldValue{Value: "Brunnen", Status: model.StatusOK, Winner: model.SourceOSM}
	f.Fields[model.FieldOperator] = model.FieldValue{Value: "Stadt", Status: model.StatusOK, Winner: model.SourceWikidata}

	out := DeriveEssential([]model.Fountain{f})
	require.Len(t, out, 1)

	e := out[0]
	assert.Equal(t, int64(4), e.ID)
	assert.Equal(t, f.Coord, e.Coord)

	// name is essential; operator and the QID are not.
	assert.Contains(t, e.Fields, model.FieldName)
	assert.NotContains(t, e.Fields, model.FieldOperator)
	assert.NotContains(t, e.Fields, model.FieldWikidataQID)

	schema := model.Schema()
	for key := range e.Fields {
		assert.True(t, schema[key].Essential, "%s leaked into essential projection", key)
	}
}

func TestDeriveEssential_Empty(t *testing.T) {
	out := DeriveEssential(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestExtractIssues(t *testing.T) {
	issueA := model.Issue{FountainID: 1, Field: model.FieldName, Message: "lookup failed", Timestamp: time.Now()}
	issueB := model.Issue{FountainID: 1, Field: model.FieldGallery, Message: "image 404", Timestamp: time.Now()}

	f := fountainAt(1, 8.54, 47.37, "")
	f.Fields[model.FieldName] = model.FieldValue{Status: model.StatusError, Issues: []model.Issue{issueA}}
	f.Fields[model.FieldGallery] = model.FieldValue{Status: model.StatusOK, Issues: []model.Issue{issueB}}
	// Comments alone never become issues.
	f.Fields[model.FieldPotable] = model.FieldValue{Status: model.StatusError, Comments: []string{"translate failed"}}

	clean := fountainAt(2, 8.55, 47.38, "")

	issues := ExtractIssues([]model.Fountain{f, clean})
	assert.ElementsMatch(t, []model.Issue{issueA, issueB}, issues)
}

func TestExtractIssues_Empty(t *testing.T) {
	issues := ExtractIssues([]model.Fountain{fountainAt(1, 8.54, 47.37, "")})
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
}
