// Package gpkgtest writes small GeoPackages for tests.
package gpkgtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/stretchr/testify/require"
)

// PNGTile is the header of a 256x256 PNG, enough for format sniffing.
var PNGTile = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR\x00\x00\x01\x00\x00\x00\x01\x00\x08\x06\x00\x00\x00")

// Create writes a GeoPackage under t.TempDir() with one tiles table in EPSG:3857
// holding two zoom levels. Tile (0,0,0) and (1,1,0) are present.
func Create(t testing.TB, table string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), table+".gpkg")
	h, err := gpkg.Open(path)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.UpdateSRS(gpkg.SpatialReferenceSystem{
		Name:                   "WGS 84 / Pseudo-Mercator",
		ID:                     3857,
		Organization:           "EPSG",
		OrganizationCoordsysID: 3857,
		Definition:             "undefined",
		Description:            "Web Mercator",
	}))

	statements := []string{
		`CREATE TABLE IF NOT EXISTS gpkg_contents (table_name TEXT NOT NULL PRIMARY KEY, data_type TEXT NOT NULL,
			identifier TEXT UNIQUE, description TEXT DEFAULT '', last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE, srs_id INTEGER);`,
		`CREATE TABLE IF NOT EXISTS gpkg_tile_matrix_set (table_name TEXT NOT NULL PRIMARY KEY, srs_id INTEGER NOT NULL,
			min_x DOUBLE NOT NULL, min_y DOUBLE NOT NULL, max_x DOUBLE NOT NULL, max_y DOUBLE NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS gpkg_tile_matrix (table_name TEXT NOT NULL, zoom_level INTEGER NOT NULL,
			matrix_width INTEGER NOT NULL, matrix_height INTEGER NOT NULL, tile_width INTEGER NOT NULL, tile_height INTEGER NOT NULL,
			pixel_x_size DOUBLE NOT NULL, pixel_y_size DOUBLE NOT NULL, CONSTRAINT pk_ttm PRIMARY KEY (table_name, zoom_level));`,
		fmt.Sprintf(`CREATE TABLE %q (id INTEGER PRIMARY KEY AUTOINCREMENT, zoom_level INTEGER NOT NULL, tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL, tile_data BLOB NOT NULL, UNIQUE (zoom_level, tile_column, tile_row));`, table),
		fmt.Sprintf(`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, srs_id)
			VALUES ('%s', 'tiles', 'Top raster', 'Topographic raster tiles', 3857);`, table),
		fmt.Sprintf(`INSERT INTO gpkg_tile_matrix_set VALUES ('%s', 3857, -20037508.3427892, -20037508.3427892, 20037508.3427892, 20037508.3427892);`, table),
		fmt.Sprintf(`INSERT INTO gpkg_tile_matrix VALUES ('%s', 0, 1, 1, 256, 256, 156543.03392804097, 156543.03392804097);`, table),
		fmt.Sprintf(`INSERT INTO gpkg_tile_matrix VALUES ('%s', 1, 2, 2, 256, 256, 78271.51696402048, 78271.51696402048);`, table),
	}
	for _, statement := range statements {
		_, err = h.Exec(statement)
		require.NoError(t, err, statement)
	}
	_, err = h.Exec(fmt.Sprintf(`INSERT INTO %q (zoom_level, tile_column, tile_row, tile_data) VALUES (0, 0, 0, ?), (1, 1, 0, ?);`, table), PNGTile, PNGTile)
	require.NoError(t, err)
	return path
}
