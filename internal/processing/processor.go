// Package processing orchestrates tile population: concurrent source
// fetches, conflation, id assignment, artifact derivation, and the write
// into the tile cache and snapshot store.
package processing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hydromap/fountains-server/internal/conflate"
	"github.com/hydromap/fountains-server/internal/geospatial"
	"github.com/hydromap/fountains-server/internal/model"
	"github.com/hydromap/fountains-server/internal/sources"
	"github.com/hydromap/fountains-server/internal/store"
)

// Processor is the conflation pipeline behind the tile cache. Queries hit
// the cache first; only tiles with no artifact at all trigger a population,
// which fetches one combined bounding box covering every missing tile.
type Processor struct {
	osm       sources.Adapter
	wikidata  sources.Adapter
	cache     *geospatial.TileCache
	snapshots store.Store // nil disables persistence
	ttls      geospatial.ArtifactTTLs
}

// NewProcessor wires the pipeline together and registers it as the cache's
// refresh callback.
func NewProcessor(osm, wikidata sources.Adapter, cache *geospatial.TileCache, snapshots store.Store, ttls geospatial.ArtifactTTLs) *Processor {
	p := &Processor{
		osm:       osm,
		wikidata:  wikidata,
		cache:     cache,
		snapshots: snapshots,
		ttls:      ttls,
	}
	cache.SetRefreshFunc(p.RefreshTile)
	return p
}

// FountainsInBBox returns the full merged records of every tile covering
// the box, populating tiles that have never been filled. When population
// fails but some tiles hold prior data, the prior data is returned; the
// error propagates only when nothing is servable.
func (p *Processor) FountainsInBBox(ctx context.Context, box geospatial.BBox) ([]model.Fountain, error) {
	tiles, popErr := p.ensurePopulated(ctx, box)

	out := make([]model.Fountain, 0)
	served := 0
	for _, tile := range tiles {
		value, ok, _ := p.cache.Get(tile, geospatial.KindFull)
		if !ok {
			continue
		}
		served++
		if fountains, ok := value.([]model.Fountain); ok {
			out = append(out, fountains...)
		}
	}

	if popErr != nil {
		if served == 0 {
			return nil, popErr
		}
		zap.L().Warn("serving partial result after population failure",
			zap.String("component", "processor"),
			zap.Int("tiles_requested", len(tiles)),
			zap.Int("tiles_served", served),
			zap.Error(popErr),
		)
	}
	return out, nil
}

// EssentialInBBox returns the reduced map-display projection for the box.
func (p *Processor) EssentialInBBox(ctx context.Context, box geospatial.BBox) ([]model.EssentialFountain, error) {
	tiles, popErr := p.ensurePopulated(ctx, box)

	out := make([]model.EssentialFountain, 0)
	served := 0
	for _, tile := range tiles {
		value, ok, _ := p.cache.Get(tile, geospatial.KindEssential)
		if !ok {
			continue
		}
		served++
		if essentials, ok := value.([]model.EssentialFountain); ok {
			out = append(out, essentials...)
		}
	}

	if popErr != nil && served == 0 {
		return nil, popErr
	}
	return out, nil
}

// IssuesInBBox returns the flattened enrichment-issue list for the box.
func (p *Processor) IssuesInBBox(ctx context.Context, box geospatial.BBox) ([]model.Issue, error) {
	tiles, popErr := p.ensurePopulated(ctx, box)

	out := make([]model.Issue, 0)
	served := 0
	for _, tile := range tiles {
		value, ok, _ := p.cache.Get(tile, geospatial.KindErrors)
		if !ok {
			continue
		}
		served++
		if issues, ok := value.([]model.Issue); ok {
			out = append(out, issues...)
		}
	}

	if popErr != nil && served == 0 {
		return nil, popErr
	}
	return out, nil
}

// Stats exposes the cache counters.
func (p *Processor) Stats() geospatial.CacheStats {
	return p.cache.Stats()
}

// RefreshTile repopulates a single tile. Registered as the cache's refresh
// callback; failures are logged, and the tile keeps its stale artifacts.
func (p *Processor) RefreshTile(ctx context.Context, tile geospatial.Tile) {
	if err := p.populateTiles(ctx, []geospatial.Tile{tile}); err != nil {
		zap.L().Warn("tile refresh failed, keeping stale artifacts",
			zap.String("component", "processor"),
			zap.String("tile", tile.Key()),
			zap.Error(err),
		)
	}
}

// PopulateBBox fills every tile covering the box unconditionally, already
// populated or not. Used by the refresh command and boot prepopulation.
func (p *Processor) PopulateBBox(ctx context.Context, box geospatial.BBox) error {
	if err := box.Validate(); err != nil {
		return err
	}
	return p.populateTiles(ctx, geospatial.TilesCovering(box))
}

// PrimeFromSnapshots loads every persisted tile snapshot into the cache
// with an already-expired TTL: the first query serves the stale data
// immediately while the sweeper schedules refreshes.
func (p *Processor) PrimeFromSnapshots(ctx context.Context) error {
	if p.snapshots == nil {
		return nil
	}
	byKey, err := p.snapshots.LoadAll(ctx)
	if err != nil {
		return eris.Wrap(err, "prime from snapshots")
	}

	primed := 0
	for key, fountains := range byKey {
		tile, err := geospatial.ParseTileKey(key)
		if err != nil {
			zap.L().Warn("skipping snapshot with malformed key",
				zap.String("component", "processor"),
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		p.cache.PutArtifacts(tile, fountains, DeriveEssential(fountains), ExtractIssues(fountains),
			geospatial.ArtifactTTLs{})
		primed++
	}

	zap.L().Info("cache primed from snapshots",
		zap.String("component", "processor"),
		zap.Int("tiles", primed),
	)
	return nil
}

// ensurePopulated resolves the covering tile set and populates the subset
// with no cached full artifact. Stale tiles are not repopulated here; the
// sweeper owns those.
func (p *Processor) ensurePopulated(ctx context.Context, box geospatial.BBox) ([]geospatial.Tile, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	tiles := geospatial.TilesCovering(box)

	var missing []geospatial.Tile
	for _, tile := range tiles {
		if _, ok, _ := p.cache.Get(tile, geospatial.KindFull); !ok {
			missing = append(missing, tile)
		}
	}
	if len(missing) == 0 {
		return tiles, nil
	}
	return tiles, p.populateTiles(ctx, missing)
}

// populateTiles fetches one combined bounding box covering the tile set,
// conflates, and writes per-tile artifacts. Only the given tiles are
// written, so a wide fetch never clobbers a neighbor's fresher artifact.
func (p *Processor) populateTiles(ctx context.Context, tiles []geospatial.Tile) error {
	box, err := geospatial.BoundsOfTiles(tiles)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("component", "processor"),
		zap.String("run_id", runID),
	)

	var osmRecords, wdRecords []model.SourceRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		osmRecords, err = p.osm.FetchByBoundingBox(gctx, box)
		return err
	})
	g.Go(func() error {
		var err error
		wdRecords, err = p.wikidata.FetchByBoundingBox(gctx, box)
		return err
	})
	if err := g.Wait(); err != nil {
		return eris.Wrapf(err, "populate %d tiles", len(tiles))
	}

	fountains := conflate.Conflate(osmRecords, wdRecords)

	// Partition the merged collection by tile. Records without a coordinate
	// cannot be placed and are dropped with a warning.
	byKey := make(map[string][]model.Fountain, len(tiles))
	wanted := make(map[string]geospatial.Tile, len(tiles))
	for _, tile := range tiles {
		wanted[tile.Key()] = tile
		byKey[tile.Key()] = []model.Fountain{}
	}
	dropped := 0
	for _, f := range fountains {
		if f.Coord == nil {
			dropped++
			continue
		}
		key := geospatial.TileOf(*f.Coord).Key()
		if _, ok := wanted[key]; !ok {
			continue
		}
		byKey[key] = append(byKey[key], f)
	}
	if dropped > 0 {
		log.Warn("dropped merged records without coordinates", zap.Int("count", dropped))
	}

	for key, tile := range wanted {
		next := byKey[key]
		prev := p.previousCollection(tile)
		AssignIDs(prev, next)

		p.cache.PutArtifacts(tile, next, DeriveEssential(next), ExtractIssues(next), p.ttls)

		if p.snapshots != nil {
			if err := p.snapshots.SaveTile(ctx, key, next); err != nil {
				log.Warn("snapshot write failed", zap.String("tile", key), zap.Error(err))
			}
		}
	}

	log.Info("tiles populated",
		zap.Int("tiles", len(tiles)),
		zap.Int("osm_records", len(osmRecords)),
		zap.Int("wikidata_records", len(wdRecords)),
		zap.Int("fountains", len(fountains)),
	)
	return nil
}

// previousCollection returns the tile's current full artifact, stale or
// not, for id carry-over.
func (p *Processor) previousCollection(tile geospatial.Tile) []model.Fountain {
	value, ok, _ := p.cache.Get(tile, geospatial.KindFull)
	if !ok {
		return nil
	}
	prev, _ := value.([]model.Fountain)
	return prev
}
