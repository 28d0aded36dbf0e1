package geo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProvider_ScaleDenominator(t *testing.T) {
	tests := []struct {
		crs        *CRS
		resolution float64
		want       float64
	}{
		{crs: EPSG3857, resolution: 156543.03392804097, want: 559082264.0287178},
		{crs: CRS84, resolution: 0.703125, want: 279541132.0143589},
		{crs: NewCompound("", EPSG3857, NewVertical("EPSG:5714", "Height", "m")), resolution: 1, want: 1 / 0.00028},
	}
	p := NewProvider()
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v@%v", tt.crs, tt.resolution), func(t *testing.T) {
			got, err := p.ScaleDenominator(tt.crs, tt.resolution)
			require.NoError(t, err)
			require.InEpsilon(t, tt.want, got, 1e-12)
		})
	}

	_, err := p.ScaleDenominator(NewVertical("EPSG:5714", "Height", "m"), 1)
	require.Error(t, err)
	_, err = p.ScaleDenominator(EPSG3857, 0)
	require.Error(t, err)
}

func TestProvider_Decompose(t *testing.T) {
	temporal := NewTemporal("time", "Time", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour)
	vertical := NewVertical("EPSG:5714", "Height", "m")
	crs := NewCompound("", EPSG3857, temporal, vertical)
	require.Equal(t, 4, crs.Dimension())

	components, err := NewProvider().Decompose(crs)
	require.NoError(t, err)
	var got []int
	for pair := components.Oldest(); pair != nil; pair = pair.Next() {
		got = append(got, pair.Key)
	}
	require.Equal(t, []int{0, 2, 3}, got)
	c, _ := components.Get(2)
	require.Same(t, temporal, c)
	c, _ = components.Get(3)
	require.Same(t, vertical, c)
}

func TestProvider_HorizontalCRSCode(t *testing.T) {
	p := NewProvider()
	require.Equal(t, "EPSG:3857", p.HorizontalCRSCode(NewCompound("", EPSG3857, NewVertical("v", "Height", "m"))))
	require.Equal(t, "EPSG:28992", p.HorizontalCRSCode(NewProjected("urn:ogc:def:crs:EPSG::28992")))
	require.Equal(t, GenericCRSCode, p.HorizontalCRSCode(NewProjected("my local grid")))
	require.Equal(t, GenericCRSCode, p.HorizontalCRSCode(NewVertical("v", "Height", "m")))
}

func TestProvider_Reproject(t *testing.T) {
	p := NewProvider()
	world := NewEnvelope(EPSG3857,
		[]float64{-20037508.342789244, -20037508.342789244},
		[]float64{20037508.342789244, 20037508.342789244})

	got, err := p.Reproject(world, CRS84)
	require.NoError(t, err)
	require.InDelta(t, -180, got.Min[0], 1e-9)
	require.InDelta(t, 180, got.Max[0], 1e-9)
	require.InDelta(t, maxMercatorLat, got.Max[1], 1e-6)

	back, err := p.Reproject(got, EPSG3857)
	require.NoError(t, err)
	require.InDelta(t, world.Max[0], back.Max[0], 1e-3)

	same, err := p.Reproject(NewEnvelope(EPSG28992, []float64{0, 1}, []float64{2, 3}), EPSG28992)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 3}, same.Max)

	_, err = p.Reproject(NewEnvelope(EPSG28992, []float64{0, 1}, []float64{2, 3}), CRS84)
	require.True(t, errors.Is(err, ErrUnsupportedTransform))
}

func TestProvider_ReferenceTime(t *testing.T) {
	p := NewProvider()
	temporal := NewTemporal("time", "Time", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour)

	got, err := p.ToReferenceTime(temporal, 31)
	require.NoError(t, err)
	require.Equal(t, time.Date(2000, 2, 1, 0, 0, 0, 0, time.UTC), got)

	v, err := p.FromReferenceTime(temporal, got)
	require.NoError(t, err)
	require.Equal(t, 31.0, v)

	_, err = p.ToReferenceTime(EPSG3857, 1)
	require.True(t, errors.Is(err, ErrNotTemporal))
}

func TestNormalizeCode(t *testing.T) {
	tests := map[string]string{
		"EPSG:3857":                   "EPSG:3857",
		"epsg:3857":                   "EPSG:3857",
		"urn:ogc:def:crs:EPSG::28992": "EPSG:28992",
		"http://www.opengis.net/def/crs/EPSG/0/3035":   "EPSG:3035",
		"http://www.opengis.net/def/crs/OGC/1.3/CRS84": "OGC:CRS84",
		"something": "something",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, NormalizeCode(in))
		})
	}
	crs, ok := Lookup("http://www.opengis.net/def/crs/OGC/1.3/CRS84")
	require.True(t, ok)
	require.Same(t, CRS84, crs)
}

func TestEnvelope_Narrow(t *testing.T) {
	crs := NewCompound("", EPSG3857, NewVertical("v", "Height", "m"))
	env := NewEnvelope(crs, []float64{0, 0, -10}, []float64{10, 10, 100})
	narrowed := env.Narrow(2, 50)
	require.Equal(t, []float64{0, 0, 50}, narrowed.Min)
	require.Equal(t, []float64{10, 10, 50}, narrowed.Max)
	require.Equal(t, -10.0, env.Min[2])

	b, err := narrowed.Horizontal()
	require.NoError(t, err)
	require.Equal(t, 10.0, b.Max.Y())
}
