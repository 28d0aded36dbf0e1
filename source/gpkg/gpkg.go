// Package gpkg serves the tile pyramids of a GeoPackage. Every tiles table
// listed in gpkg_contents is one layer with a single pyramid named after the table.
package gpkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/source"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/maypok86/otter/v2"
)

const defaultTileCacheSize = 1024

var defaultFormat = source.TileFormat{MIME: "image/png", Extension: "png"}

type Options struct {
	// Maximum number of tiles kept in memory
	TileCacheSize int
	Logger        *log.Logger
}

type tileKey struct {
	table    string
	zoom     int
	col, row uint
}

type Source struct {
	path   string
	handle *gpkg.Handle
	tiles  *otter.Cache[tileKey, []byte]
	logger *log.Logger
}

func Open(path string, options Options) (*Source, error) {
	handle, err := gpkg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage %s: %w", path, err)
	}
	if options.TileCacheSize <= 0 {
		options.TileCacheSize = defaultTileCacheSize
	}
	if options.Logger == nil {
		options.Logger = log.Default()
	}
	tiles, err := otter.New(&otter.Options[tileKey, []byte]{
		MaximumSize: options.TileCacheSize,
	})
	if err != nil {
		_ = handle.Close()
		return nil, err
	}
	return &Source{path: path, handle: handle, tiles: tiles, logger: options.Logger}, nil
}

func (s *Source) Close() error {
	s.tiles.InvalidateAll()
	return s.handle.Close()
}

func (s *Source) Layers(ctx context.Context) ([]source.Layer, error) {
	query := `SELECT table_name, identifier, description FROM gpkg_contents WHERE data_type = 'tiles' ORDER BY table_name;`
	rows, err := s.handle.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing tile tables of %s: %w", s.path, err)
	}
	defer rows.Close()

	var layers []source.Layer
	for rows.Next() {
		var l source.Layer
		var identifier, description sql.NullString
		if err = rows.Scan(&l.Name, &identifier, &description); err != nil {
			return nil, fmt.Errorf("error reading gpkg_contents: %w", err)
		}
		l.Title = identifier.String
		l.Abstract = description.String
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (s *Source) Pyramids(ctx context.Context, layer string) ([]*source.Pyramid, error) {
	var srsID int
	var minX, minY, maxX, maxY float64
	query := `SELECT tms.srs_id, tms.min_x, tms.min_y, tms.max_x, tms.max_y
		FROM gpkg_tile_matrix_set tms JOIN gpkg_contents c ON c.table_name = tms.table_name
		WHERE c.data_type = 'tiles' AND tms.table_name = ?;`
	err := s.handle.QueryRowContext(ctx, query, layer).Scan(&srsID, &minX, &minY, &maxX, &maxY)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", layer, source.ErrLayerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading tile matrix set of %s: %w", layer, err)
	}

	crs, err := s.crs(ctx, srsID)
	if err != nil {
		return nil, err
	}
	levels, err := s.levels(ctx, layer, minX, maxY)
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return []*source.Pyramid{}, nil
	}

	return []*source.Pyramid{{
		ID:       layer,
		CRS:      crs,
		Envelope: geo.NewEnvelope(crs, []float64{minX, minY}, []float64{maxX, maxY}),
		Format:   s.sniffFormat(ctx, layer),
		Levels:   levels,
		Tiles:    &tableReader{source: s, table: layer},
	}}, nil
}

// crs maps a gpkg_spatial_ref_sys entry onto a known CRS, falling back to a projected one
func (s *Source) crs(ctx context.Context, srsID int) (*geo.CRS, error) {
	var organization string
	var coordsysID int
	query := `SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?;`
	err := s.handle.QueryRowContext(ctx, query, srsID).Scan(&organization, &coordsysID)
	if err != nil {
		return nil, fmt.Errorf("error reading spatial reference system %d: %w", srsID, err)
	}
	code := strings.ToUpper(organization) + ":" + strconv.Itoa(coordsysID)
	if crs, ok := geo.Lookup(code); ok {
		return crs, nil
	}
	return geo.NewProjected(code), nil
}

func (s *Source) levels(ctx context.Context, table string, originX, originY float64) ([]source.Level, error) {
	query := `SELECT zoom_level, matrix_width, matrix_height, tile_width, tile_height, pixel_x_size
		FROM gpkg_tile_matrix WHERE table_name = ? ORDER BY zoom_level;`
	rows, err := s.handle.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("error reading tile matrices of %s: %w", table, err)
	}
	defer rows.Close()

	var levels []source.Level
	for rows.Next() {
		var zoom int
		var slice source.Slice
		var resolution float64
		err = rows.Scan(&zoom, &slice.GridWidth, &slice.GridHeight, &slice.TileWidth, &slice.TileHeight, &resolution)
		if err != nil {
			return nil, fmt.Errorf("error reading tile matrix of %s: %w", table, err)
		}
		slice.ID = table + "/" + strconv.Itoa(zoom)
		slice.Corner = []float64{originX, originY}
		levels = append(levels, source.Level{
			ID:         strconv.Itoa(zoom),
			Resolution: resolution,
			Slices:     []source.Slice{slice},
		})
	}
	return levels, rows.Err()
}

func (s *Source) sniffFormat(ctx context.Context, table string) source.TileFormat {
	var data []byte
	query := fmt.Sprintf(`SELECT tile_data FROM "%v" LIMIT 1;`, table)
	err := s.handle.QueryRowContext(ctx, query).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Printf("could not sniff tile format of %s: %v", table, err)
		}
		return defaultFormat
	}
	detected := mimetype.Detect(data)
	return source.TileFormat{
		MIME:      detected.String(),
		Extension: strings.TrimPrefix(detected.Extension(), "."),
	}
}

// readTile loads a single tile blob, tile_row 0 being the top row
func (s *Source) readTile(ctx context.Context, key tileKey) ([]byte, error) {
	var data []byte
	query := fmt.Sprintf(`SELECT tile_data FROM "%v" WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?;`, key.table)
	err := s.handle.QueryRowContext(ctx, query, key.zoom, key.col, key.row).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, otter.ErrNotFound
	}
	return data, err
}

type tableReader struct {
	source *Source
	table  string
}

func (r *tableReader) ReadTile(ctx context.Context, level *source.Level, _ *source.Slice, col, row uint) (source.Tile, error) {
	zoom, err := strconv.Atoi(level.ID)
	if err != nil {
		return source.Tile{}, fmt.Errorf("level %q is not a zoom level: %w", level.ID, err)
	}
	key := tileKey{table: r.table, zoom: zoom, col: col, row: row}
	data, err := r.source.tiles.Get(ctx, key, otter.LoaderFunc[tileKey, []byte](r.source.readTile))
	switch {
	case errors.Is(err, otter.ErrNotFound):
		return source.Tile{Status: source.Missing}, nil
	case err != nil:
		return source.Tile{}, err
	}
	return source.Tile{Status: source.Present, Data: data}, nil
}
