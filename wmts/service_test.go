package wmts

import (
	"context"
	"io"
	"log"
	"net/url"
	"testing"

	"github.com/pdok/tilecaps/capabilities"
	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/ows"
	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/source/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const worldMercator = 20037508.3427892

var discard = log.New(io.Discard, "", 0)

func worldPyramid(id string, tiles *memory.Tiles) *source.Pyramid {
	return &source.Pyramid{
		ID:       id,
		CRS:      geo.EPSG3857,
		Envelope: geo.NewEnvelope(geo.EPSG3857, []float64{-worldMercator, -worldMercator}, []float64{worldMercator, worldMercator}),
		Format:   source.TileFormat{MIME: "image/png", Extension: "png"},
		Levels: []source.Level{{
			ID:         "0",
			Resolution: 2 * worldMercator / 256,
			Slices: []source.Slice{{
				ID: id + "/0", Corner: []float64{-worldMercator, worldMercator},
				GridWidth: 1, GridHeight: 1, TileWidth: 256, TileHeight: 256,
			}},
		}},
		Tiles: tiles,
	}
}

func newService(src source.Source) *Service {
	return NewService(src, geo.NewProvider(), capabilities.Metadata{
		DefaultLanguage: "en",
		Titles:          map[string]string{"en": "World", "nl": "Wereld"},
		BaseURL:         "https://example.com/wmts",
		TileMatrixSets:  []string{"WebMercatorQuad"},
	}, Options{Workers: 2, Logger: discard})
}

func TestService_twoLayersShareTileMatrixSet(t *testing.T) {
	tiles := memory.NewTiles()
	tiles.Put("A-3857/0", 0, 0, []byte("A"))
	mem := memory.New()
	mem.Put(source.Layer{Name: "A"}, worldPyramid("A-3857", tiles))
	mem.Put(source.Layer{Name: "B"}, worldPyramid("B-3857", memory.NewTiles()))
	svc := newService(mem)
	ctx := context.Background()

	resp, err := svc.Handle(ctx, GetCapabilities{})
	require.NoError(t, err)
	doc := resp.(CapabilitiesResponse).Document
	require.Len(t, doc.Contents.Layers, 2)
	a, b := doc.Contents.Layers[0], doc.Contents.Layers[1]
	assert.Equal(t, []string{"A-3857"}, a.TileMatrixSetLinks)
	assert.Equal(t, []string{"A-3857"}, b.TileMatrixSetLinks)
	assert.ElementsMatch(t, []string{"A-3857", "WebMercatorQuad"}, doc.TileMatrixSetIDs())
	assert.InDelta(t, 559082264.0287178, doc.Contents.TileMatrixSets[0].TileMatrices[0].ScaleDenominator, 1e-3)

	snapshot, err := svc.cache.Get(ctx, capabilities.Key{Version: capabilities.DefaultVersion, Language: "en"})
	require.NoError(t, err)
	pyramids, ok := snapshot.Registry.Lookup("A-3857")
	require.True(t, ok)
	assert.Equal(t, []string{"A-3857", "B-3857"}, pyramids)

	resp, err = svc.Handle(ctx, GetTile{Layer: "A", TileMatrixSet: "A-3857", TileMatrix: "0", Format: "image/png"})
	require.NoError(t, err)
	result := resp.(TileResponse).Result
	assert.Equal(t, "A-3857", result.PyramidID)
	assert.False(t, result.Missing)
	assert.Equal(t, []byte("A"), result.Data)

	resp, err = svc.Handle(ctx, GetTile{Layer: "B", TileMatrixSet: "A-3857", TileMatrix: "0"})
	require.NoError(t, err)
	result = resp.(TileResponse).Result
	assert.Equal(t, "B-3857", result.PyramidID)
	assert.True(t, result.Missing)

	values, err := url.ParseQuery("SERVICE=WMTS&REQUEST=GetTile&LAYER=A&TILEMATRIXSET=A-3857&TILEMATRIX=0&TILEROW=0&TILECOL=0&_=12345")
	require.NoError(t, err)
	req, err := ParseQuery(values)
	require.NoError(t, err)
	resp, err = svc.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), resp.(TileResponse).Result.Data)

	values.Set("DIM_BAND", "red")
	req, err = ParseQuery(values)
	require.NoError(t, err)
	_, err = svc.Handle(ctx, req)
	assert.ErrorIs(t, err, ows.InvalidParameter("dim_band", ""))

	_, err = svc.Handle(ctx, GetTile{Layer: "B", TileMatrixSet: "A-3857", TileMatrix: "0", TileCol: 1})
	assert.ErrorIs(t, err, ows.OutOfRange("column", 1, 1))
	assert.Equal(t, int64(1), svc.Rebuilds())
}

func TestService_GetCapabilities(t *testing.T) {
	mem := memory.New()
	mem.Put(source.Layer{Name: "A"}, worldPyramid("A-3857", nil))
	svc := newService(mem)
	ctx := context.Background()

	doc, err := svc.GetCapabilities(ctx, "", "nl", []string{"ServiceIdentification"})
	require.NoError(t, err)
	assert.Equal(t, "nl", doc.Language)
	assert.Equal(t, "Wereld", doc.ServiceIdentification.Title)
	assert.Nil(t, doc.Contents)

	doc, err = svc.GetCapabilities(ctx, "1.0.0", "fr", nil)
	require.NoError(t, err)
	assert.Equal(t, "en", doc.Language)
	assert.NotNil(t, doc.Contents)
	// "fr" falls back to the "en" document
	assert.Equal(t, int64(2), svc.Rebuilds())

	_, err = svc.GetCapabilities(ctx, "2.0.0", "", nil)
	assert.ErrorIs(t, err, ows.InvalidParameter("version", ""))

	_, err = svc.GetCapabilities(ctx, "", "", []string{"Themes"})
	assert.ErrorIs(t, err, ows.InvalidParameter("sections", ""))
}

func TestService_Invalidate(t *testing.T) {
	mem := memory.New()
	mem.Put(source.Layer{Name: "A"}, worldPyramid("A-3857", nil))
	svc := newService(mem)
	ctx := context.Background()

	doc, err := svc.GetCapabilities(ctx, "", "", nil)
	require.NoError(t, err)
	require.Len(t, doc.Contents.Layers, 1)

	mem.Put(source.Layer{Name: "C"}, worldPyramid("C-3857", nil))
	doc, err = svc.GetCapabilities(ctx, "", "", nil)
	require.NoError(t, err)
	assert.Len(t, doc.Contents.Layers, 1, "served from cache")

	svc.Invalidate("", "en")
	doc, err = svc.GetCapabilities(ctx, "", "", nil)
	require.NoError(t, err)
	assert.Len(t, doc.Contents.Layers, 2)

	_, err = svc.GetCapabilities(ctx, "", "nl", nil)
	require.NoError(t, err)
	mem.Remove("C")
	svc.InvalidateAll()
	doc, err = svc.GetCapabilities(ctx, "", "nl", nil)
	require.NoError(t, err)
	assert.Len(t, doc.Contents.Layers, 1)
	assert.Equal(t, int64(4), svc.Rebuilds())
}

type unknownRequest struct{}

func (unknownRequest) request() {}

func TestService_Handle_unsupported(t *testing.T) {
	svc := newService(memory.New())
	_, err := svc.Handle(context.Background(), unknownRequest{})
	assert.ErrorIs(t, err, &ows.Fault{Code: ows.OperationNotSupported})

	_, err = svc.Handle(context.Background(), GetTile{Version: "0.9", Layer: "A"})
	assert.ErrorIs(t, err, ows.InvalidParameter("version", ""))
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    Request
		wantErr *ows.Fault
	}{
		{
			name:  "capabilities",
			query: "SERVICE=WMTS&REQUEST=GetCapabilities&AcceptVersions=1.0.0,2.0.0&Sections=Contents,ServiceProvider&Language=nl",
			want:  GetCapabilities{Version: "1.0.0", Language: "nl", Sections: []string{"Contents", "ServiceProvider"}},
		},
		{
			name:  "capabilities lower case",
			query: "service=wmts&request=getcapabilities",
			want:  GetCapabilities{},
		},
		{
			name:  "tile",
			query: "SERVICE=WMTS&REQUEST=GetTile&VERSION=1.0.0&LAYER=A&STYLE=default&FORMAT=image/png&TILEMATRIXSET=WebMercatorQuad&TILEMATRIX=3&TILEROW=2&TILECOL=5&TIME=2022-01-08",
			want: GetTile{
				Version: "1.0.0", Layer: "A", Style: "default", Format: "image/png",
				TileMatrixSet: "WebMercatorQuad", TileMatrix: "3", TileRow: 2, TileCol: 5,
				Dimensions: map[string]string{"time": "2022-01-08"},
			},
		},
		{
			name:  "unrecognised parameters",
			query: "REQUEST=GetTile&LAYER=A&TILEMATRIXSET=s&TILEMATRIX=0&TILEROW=0&TILECOL=0&_=12345&Dim_Band=red&Transparent=true",
			want: GetTile{
				Layer: "A", TileMatrixSet: "s", TileMatrix: "0",
				Dimensions: map[string]string{"dim_band": "red"},
				Extra:      map[string]string{"_": "12345", "transparent": "true"},
			},
		},
		{
			name:  "negative index parses",
			query: "REQUEST=GetTile&LAYER=A&TILEMATRIXSET=s&TILEMATRIX=0&TILEROW=-1&TILECOL=0",
			want:  GetTile{Layer: "A", TileMatrixSet: "s", TileMatrix: "0", TileRow: -1},
		},
		{
			name:    "missing layer",
			query:   "REQUEST=GetTile&TILEMATRIXSET=s&TILEMATRIX=0&TILEROW=0&TILECOL=0",
			wantErr: ows.InvalidParameter("layer", ""),
		},
		{
			name:    "bad row",
			query:   "REQUEST=GetTile&LAYER=A&TILEMATRIXSET=s&TILEMATRIX=0&TILEROW=one&TILECOL=0",
			wantErr: ows.InvalidParameter("tilerow", ""),
		},
		{
			name:    "other service",
			query:   "SERVICE=WMS&REQUEST=GetCapabilities",
			wantErr: ows.InvalidParameter("service", ""),
		},
		{
			name:    "missing request",
			query:   "SERVICE=WMTS",
			wantErr: ows.InvalidParameter("request", ""),
		},
		{
			name:    "feature info",
			query:   "SERVICE=WMTS&REQUEST=GetFeatureInfo",
			wantErr: &ows.Fault{Code: ows.OperationNotSupported},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			got, err := ParseQuery(values)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_defaultVersion(t *testing.T) {
	mem := memory.New()
	mem.Put(source.Layer{Name: "A"}, worldPyramid("A-3857", nil))
	metadata := capabilities.Metadata{DefaultVersion: "1.0.0", DefaultLanguage: "en", Titles: map[string]string{"en": "World"}}
	svc := NewService(mem, geo.NewProvider(), metadata, Options{Logger: discard})
	doc, err := svc.GetCapabilities(context.Background(), "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Version)

	metadata.DefaultVersion = "2.0.0"
	svc = NewService(mem, geo.NewProvider(), metadata, Options{Logger: discard})
	_, err = svc.GetCapabilities(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, ows.InvalidParameter("version", ""))
}
