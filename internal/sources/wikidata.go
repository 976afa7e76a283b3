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

// DefaultSPARQLURL is the public Wikidata Query Service endpoint.
const DefaultSPARQLURL = "https://query.wikidata.org/sparql"

// sparqlQuery selects fountain items with a coordinate inside a box.
// Placeholders: west, south, east, north.
const sparqlQuery = `SELECT ?item ?itemLabel ?itemDescription ?coord ?image ?inception ?operatorLabel ?article WHERE {
  ?item wdt:P31/wdt:P279* wd:Q1630622 .
  SERVICE wikibase:box {
    ?item wdt:P625 ?coord .
    bd:serviceParam wikibase:cornerSouthWest "Point(%f %f)"^^geo:wktLiteral .
    bd:serviceParam wikibase:cornerNorthEast "Point(%f %f)"^^geo:wktLiteral .
  }
  OPTIONAL { ?item wdt:P18 ?image . }
  OPTIONAL { ?item wdt:P571 ?inception . }
  OPTIONAL { ?item wdt:P137 ?operator . }
  OPTIONAL { ?article schema:about ?item ; schema:isPartOf <https://en.wikipedia.org/> . }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en,de" . }
}`

// WikidataAdapter fetches fountain items from a SPARQL endpoint.
type WikidataAdapter struct {
	client *httpClient
	url    string
}

// NewWikidata creates a Wikidata adapter.
func NewWikidata(opts Options) *WikidataAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultSPARQLURL
	}
	return &WikidataAdapter{
		client: newHTTPClient(model.SourceWikidata, opts),
		url:    opts.BaseURL,
	}
}

// Source implements Adapter.
func (a *WikidataAdapter) Source() model.Source { return model.SourceWikidata }

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

type sparqlValue struct {
	Value string `json:"value"`
}

// FetchByBoundingBox implements Adapter. SPARQL returns one row per
// (item, image) combination; rows are regrouped into one record per QID
// with the images accumulated.
func (a *WikidataAdapter) FetchByBoundingBox(ctx context.Context, box geospatial.BBox) ([]model.SourceRecord, error) {
	query := fmt.Sprintf(sparqlQuery, box.MinLng, box.MinLat, box.MaxLng, box.MaxLat)

	body, err := a.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		u := a.url + "?query=" + url.QueryEscape(query) + "&format=json"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/sparql-results+json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp sparqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "wikidata: decode sparql response")
	}

	records := a.groupBindings(resp.Results.Bindings)

	zap.L().Debug("wikidata fetch complete",
		zap.String("component", "wikidata_adapter"),
		zap.Int("rows", len(resp.Results.Bindings)),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// groupBindings folds SPARQL result rows into one SourceRecord per item,
// preserving first-seen order.
func (a *WikidataAdapter) groupBindings(bindings []map[string]sparqlValue) []model.SourceRecord {
	byQID := make(map[string]*model.SourceRecord)
	order := make([]string, 0, len(bindings))

	for _, row := range bindings {
		qid := qidFromURI(row["item"].Value)
		if qid == "" {
			continue
		}

		rec, seen := byQID[qid]
		if !seen {
			rec = &model.SourceRecord{
				Source: model.SourceWikidata,
				ID:     qid,
				Raw: map[string]any{
					"id":           qid,
					"labels":       map[string]any{},
					"descriptions": map[string]any{},
					"claims":       map[string]any{},
					"sitelinks":    map[string]any{},
				},
			}
			byQID[qid] = rec
			order = append(order, qid)
		}

		if rec.Coord == nil {
			if c, ok := parsePointWKT(row["coord"].Value); ok {
				rec.Coord = &c
				rec.Raw["lat"] = c.Lat
				rec.Raw["lon"] = c.Lon
			}
		}

		labels := rec.Raw["labels"].(map[string]any)
		descriptions := rec.Raw["descriptions"].(map[string]any)
		claims := rec.Raw["claims"].(map[string]any)
		sitelinks := rec.Raw["sitelinks"].(map[string]any)

		// The label service resolves en with de fallback; an unlabeled item
		// echoes its QID back, which is no label at all.
		if v := row["itemLabel"].Value; v != "" && v != qid {
			labels["en"] = v
		}
		if v := row["itemDescription"].Value; v != "" {
			descriptions["en"] = v
		}
		if v := row["inception"].Value; v != "" {
			claims["P571"] = v
		}
		if v := row["operatorLabel"].Value; v != "" {
			claims["P137"] = v
		}
		if v := row["article"].Value; v != "" {
			if title := wikipediaTitle(v); title != "" {
				sitelinks["enwiki"] = title
			}
		}
		if v := row["image"].Value; v != "" {
			images, _ := claims["P18"].([]any)
			if !containsValue(images, v) {
				claims["P18"] = append(images, any(v))
			}
		}
	}

	records := make([]model.SourceRecord, 0, len(order))
	for _, qid := range order {
		records = append(records, *byQID[qid])
	}
	return records
}

func containsValue(list []any, v string) bool {
	for _, e := range list {
		if s, ok := e.(string); ok && s == v {
			return true
		}
	}
	return false
}

// qidFromURI extracts "Q123" from an entity URI.
func qidFromURI(uri string) string {
	idx := strings.LastIndex(uri, "/")
	if idx < 0 || idx == len(uri)-1 {
		return ""
	}
	qid := uri[idx+1:]
	if !strings.HasPrefix(qid, "Q") {
		return ""
	}
	return qid
}

// parsePointWKT parses "Point(lon lat)".
func parsePointWKT(wkt string) (model.Coordinate, bool) {
	s := strings.TrimSpace(wkt)
	if !strings.HasPrefix(s, "Point(") || !strings.HasSuffix(s, ")") {
		return model.Coordinate{}, false
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "Point("), ")")
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return model.Coordinate{}, false
	}
	lon, err1 := strconv.ParseFloat(parts[0], 64)
	lat, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return model.Coordinate{}, false
	}
	return model.Coordinate{Lon: lon, Lat: lat}, true
}

// wikipediaTitle extracts the article title (with spaces) from an enwiki URL.
func wikipediaTitle(article string) string {
	const prefix = "/wiki/"
	idx := strings.Index(article, prefix)
	if idx < 0 {
		return ""
	}
	title := article[idx+len(prefix):]
	if unescaped, err := url.PathUnescape(title); err == nil {
		title = unescaped
	}
	return strings.ReplaceAll(title, "_", " ")
}
