package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldKey is the closed set of canonical field names. Every merged record
// carries exactly one FieldValue per name in the schema.
type FieldKey string

const (
	FieldName         FieldKey = "name"
	FieldDescription  FieldKey = "description"
	FieldPotable      FieldKey = "potable"
	FieldWaterType    FieldKey = "water_type"
	FieldConstructed  FieldKey = "construction_date"
	FieldOperator     FieldKey = "operator_name"
	FieldGallery      FieldKey = "gallery"
	FieldWikidataQID  FieldKey = "wikidata_qid"
	FieldWikipediaURL FieldKey = "wikipedia_url"
	FieldWheelchair   FieldKey = "access_wheelchair"
)

// ExtractionSpec tells the merge engine where a field lives inside a source
// record's raw payload and how to turn the raw value into a canonical one.
// Fallback is tried when Path yields nothing. A nil Translate is identity.
type ExtractionSpec struct {
	Path      string
	Fallback  string
	Translate func(raw any) (any, error)
}

// FieldMetadata is one row of the static schema.
type FieldMetadata struct {
	Name       FieldKey
	Essential  bool
	Type       string
	Preference []Source
	// Accumulate unions candidate lists from both sources instead of
	// picking a single winner. Only the gallery field uses this.
	Accumulate bool
	BySource   map[Source]ExtractionSpec
}

// schema is resolved once at package init and never mutated afterwards.
var schema = buildSchema()

// Schema returns the static field metadata table.
func Schema() map[FieldKey]FieldMetadata {
	return schema
}

// fieldKeys fixes the iteration order of the schema, for deterministic
// output.
var fieldKeys = []FieldKey{
	FieldName,
	FieldDescription,
	FieldPotable,
	FieldWaterType,
	FieldConstructed,
	FieldOperator,
	FieldGallery,
	FieldWikidataQID,
	FieldWikipediaURL,
	FieldWheelchair,
}

// FieldKeys returns the closed, ordered list of canonical field names.
func FieldKeys() []FieldKey {
	return fieldKeys
}

func buildSchema() map[FieldKey]FieldMetadata {
	table := []FieldMetadata{
		{
			Name:       FieldName,
			Essential:  true,
			Type:       "string",
			Preference: []Source{SourceOSM, SourceWikidata},
			BySource: map[Source]ExtractionSpec{
				SourceOSM:      {Path: "tags.name", Fallback: "tags.name:en", Translate: TranslateString},
				SourceWikidata: {Path: "labels.en", Fallback: "labels.de", Translate: TranslateString},
			},
		},
		{
			Name:       FieldDescription,
			Essential:  false,
			Type:       "string",
			Preference: []Source{SourceOSM, SourceWikidata},
			BySource: map[Source]ExtractionSpec{
				SourceOSM:      {Path: "tags.description", Translate: TranslateString},
				SourceWikidata: {Path: "descriptions.en", Translate: TranslateString},
			},
		},
		{
			Name:       FieldPotable,
			Essential:  true,
			Type:       "boolean",
			Preference: []Source{SourceOSM},
			BySource: map[Source]ExtractionSpec{
				SourceOSM: {Path: "tags.drinking_water", Translate: TranslateYesNo},
			},
		},
		{
			Name:       FieldWaterType,
			Essential:  true,
			Type:       "string",
			Preference: []Source{SourceOSM},
			BySource: map[Source]ExtractionSpec{
				SourceOSM: {Path: "tags.water_type", Fallback: "tags.water_characteristic", Translate: TranslateString},
			},
		},
		{
			Name:       FieldConstructed,
			Essential:  false,
			Type:       "number",
			Preference: []Source{SourceWikidata, SourceOSM},
			BySource: map[Source]ExtractionSpec{
				SourceOSM:      {Path: "tags.start_date", Translate: TranslateYear},
				SourceWikidata: {Path: "claims.P571", Translate: TranslateYear},
			},
		},
		{
			Name:       FieldOperator,
			Essential:  false,
			Type:       "string",
			Preference: []Source{SourceWikidata, SourceOSM},
			BySource: map[Source]ExtractionSpec{
				SourceOSM:      {Path: "tags.operator", Translate: TranslateString},
				SourceWikidata: {Path: "claims.P137", Translate: TranslateString},
			},
		},
		{
			Name:       FieldGallery,
			Essential:  true,
			Type:       "list",
			Preference: []Source{SourceWikidata, SourceOSM},
			Accumulate: true,
			BySource: map[Source]ExtractionSpec{
				SourceOSM:      {Path: "tags.image", Translate: TranslateImageList},
				SourceWikidata: {Path: "claims.P18", Translate: TranslateImageList},
			},
		},
		{
			Name:       FieldWikidataQID,
			Essential:  false,
			Type:       "string",
			Preference: []Source{SourceWikidata, SourceOSM},
			BySource: map[Source]ExtractionSpec{
				SourceOSM:      {Path: "tags.wikidata", Translate: TranslateString},
				SourceWikidata: {Path: "id", Translate: TranslateString},
			},
		},
		{
			Name:       FieldWikipediaURL,
			Essential:  false,
			Type:       "string",
			Preference: []Source{SourceWikidata},
			BySource: map[Source]ExtractionSpec{
				SourceWikidata: {Path: "sitelinks.enwiki", Translate: TranslateWikipediaTitle},
			},
		},
		{
			Name:       FieldWheelchair,
			Essential:  false,
			Type:       "boolean",
			Preference: []Source{SourceOSM},
			BySource: map[Source]ExtractionSpec{
				SourceOSM: {Path: "tags.wheelchair", Translate: TranslateYesNo},
			},
		},
	}

	m := make(map[FieldKey]FieldMetadata, len(table))
	for _, fm := range table {
		m[fm.Name] = fm
	}
	return m
}

// ValueAtPath walks a dot-separated path through nested maps. Returns nil
// when any segment is missing or a non-map is traversed into.
func ValueAtPath(raw map[string]any, path string) any {
	if raw == nil || path == "" {
		return nil
	}
	var cur any = raw
	for seg := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// TranslateString passes through non-empty strings and stringifies numbers.
func TranslateString(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		return s, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
}

// TranslateYesNo maps the OSM yes/no tag vocabulary onto a boolean.
// Unknown values yield no data rather than an error: tags like "limited"
// are common and not worth degrading the field for.
func TranslateYesNo(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	default:
		return nil, nil
	}
}

// TranslateYear extracts a 4-digit year from date-like strings such as
// "1870", "1870-05-01", or "+1870-00-00T00:00:00Z" (Wikidata time format).
func TranslateYear(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(v, "+"))
		if len(s) < 4 {
			return nil, fmt.Errorf("no year in %q", v)
		}
		year, err := strconv.Atoi(s[:4])
		if err != nil {
			return nil, fmt.Errorf("no year in %q", v)
		}
		return year, nil
	default:
		return nil, fmt.Errorf("expected date string, got %T", raw)
	}
}

// TranslateImageList normalizes a single image reference or a list of them
// into []string.
func TranslateImageList(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		return []string{s}, nil
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, got %T element", e)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected image reference, got %T", raw)
	}
}

// TranslateWikipediaTitle turns an enwiki sitelink title into a full URL.
func TranslateWikipediaTitle(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected string, got %T", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(s, " ", "_"), nil
}
