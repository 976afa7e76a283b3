// Package model defines the domain types shared across the fountain
// aggregation pipeline: source records, the merged fountain shape, and the
// static field schema that drives extraction and merging.
package model

import "time"

// Source identifies one of the two upstream collections.
type Source string

const (
	SourceOSM      Source = "osm"
	SourceWikidata Source = "wikidata"
)

// Status describes the outcome of extracting a field value from a source.
type Status string

const (
	// StatusOK means a non-null value was extracted.
	StatusOK Status = "OK"
	// StatusNotDefined means the source carries the field but had no data.
	StatusNotDefined Status = "NOT_DEFINED"
	// StatusNotAvailable means the schema has no extraction descriptor for
	// this field on this source.
	StatusNotAvailable Status = "NOT_AVAILABLE"
	// StatusSourceAbsent means no record from this source participated in
	// the merge.
	StatusSourceAbsent Status = "SOURCE_ABSENT"
	// StatusError means the translate step failed for this field.
	StatusError Status = "ERROR"
)

// Coordinate is a longitude/latitude pair in degrees (WGS84).
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// SourceRecord is one fountain candidate as delivered by a source adapter.
// It is immutable once built: the merge engine only reads from it.
type SourceRecord struct {
	Source Source         `json:"source"`
	ID     string         `json:"id"`
	Coord  *Coordinate    `json:"coord,omitempty"`
	Raw    map[string]any `json:"raw"`
}

// Issue records a downstream enrichment failure attached to a field. The
// merge and conflation steps never populate issues; they write to
// FieldValue.Comments instead.
type Issue struct {
	FountainID int64     `json:"fountain_id"`
	Field      FieldKey  `json:"field"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// FieldValue is the merged per-field cell of a Fountain.
// Invariant: Status == StatusOK iff Value != nil, and then Winner names the
// source that supplied the value.
type FieldValue struct {
	Value     any               `json:"value"`
	Status    Status            `json:"status"`
	Winner    Source            `json:"source,omitempty"`
	PerSource map[Source]Status `json:"per_source"`
	Comments  []string          `json:"comments,omitempty"`
	Issues    []Issue           `json:"issues,omitempty"`
}

// Fountain is the canonical merged record for one physical fountain.
// ID is zero until the record is written into the tile cache, which assigns
// an id that is stable across refreshes of the same tile.
type Fountain struct {
	ID            int64                   `json:"id"`
	Coord         *Coordinate             `json:"coord,omitempty"`
	Fields        map[FieldKey]FieldValue `json:"fields"`
	MergeNotes    string                  `json:"merge_notes"`
	MergeDistance *float64                `json:"merge_distance,omitempty"`
	MergeDate     time.Time               `json:"merge_date"`
}

// EssentialFountain is the reduced projection served for map display:
// id, coordinate, and only the fields flagged essential in the schema.
type EssentialFountain struct {
	ID     int64                   `json:"id"`
	Coord  *Coordinate             `json:"coord,omitempty"`
	Fields map[FieldKey]FieldValue `json:"fields"`
}
