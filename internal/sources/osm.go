package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hydromap/fountains-server/internal/geospatial"
	"github.com/hydromap/fountains-server/internal/model"
)

// DefaultOverpassURL is the public Overpass API interpreter endpoint.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OSMAdapter fetches drinking-water nodes from an Overpass API endpoint.
type OSMAdapter struct {
	client *httpClient
	url    string
}

// NewOSM creates an OSM adapter.
func NewOSM(opts Options) *OSMAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOverpassURL
	}
	return &OSMAdapter{
		client: newHTTPClient(model.SourceOSM, opts),
		url:    opts.BaseURL,
	}
}

// Source implements Adapter.
func (a *OSMAdapter) Source() model.Source { return model.SourceOSM }

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// FetchByBoundingBox implements Adapter. The result is empty, never nil,
// when the box contains no fountains.
func (a *OSMAdapter) FetchByBoundingBox(ctx context.Context, box geospatial.BBox) ([]model.SourceRecord, error) {
	// Overpass bounding boxes are (south, west, north, east).
	query := fmt.Sprintf(
		`[out:json][timeout:25];node["amenity"="drinking_water"](%f,%f,%f,%f);out body;`,
		box.MinLat, box.MinLng, box.MaxLat, box.MaxLng,
	)

	body, err := a.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		form := url.Values{"data": []string{query}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url,
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp overpassResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "osm: decode overpass response")
	}

	records := make([]model.SourceRecord, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		if el.Type != "node" {
			continue
		}
		records = append(records, elementToRecord(el))
	}

	zap.L().Debug("osm fetch complete",
		zap.String("component", "osm_adapter"),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func elementToRecord(el overpassElement) model.SourceRecord {
	tags := make(map[string]any, len(el.Tags))
	for k, v := range el.Tags {
		tags[k] = v
	}
	return model.SourceRecord{
		Source: model.SourceOSM,
		ID:     "node/" + strconv.FormatInt(el.ID, 10),
		Coord:  &model.Coordinate{Lon: el.Lon, Lat: el.Lat},
		Raw: map[string]any{
			"id":   el.ID,
			"lat":  el.Lat,
			"lon":  el.Lon,
			"tags": tags,
		},
	}
}
