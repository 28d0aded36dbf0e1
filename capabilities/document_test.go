package capabilities

import (
	"testing"

	"github.com/pdok/tilecaps/ows"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument() *Document {
	return &Document{
		Version:               DefaultVersion,
		Language:              "en",
		ServiceIdentification: &Identification{Title: "Tiles"},
		ServiceProvider:       &Provider{Name: "PDOK"},
		OperationsMetadata:    []Operation{{Name: "GetCapabilities"}},
		Contents:              &Content{Layers: []Layer{{Name: "A", TileMatrixSetLinks: []string{"x"}}}},
	}
}

func TestDocument_WithSections(t *testing.T) {
	doc := testDocument()

	tests := []struct {
		name     string
		sections []string
		same     bool
		check    func(t *testing.T, d *Document)
	}{
		{name: "none", sections: nil, same: true},
		{name: "blank", sections: []string{" "}, same: true},
		{name: "all", sections: []string{"Contents", "All"}, same: true},
		{name: "contents", sections: []string{"Contents"}, check: func(t *testing.T, d *Document) {
			assert.Nil(t, d.ServiceIdentification)
			assert.Nil(t, d.ServiceProvider)
			assert.Nil(t, d.OperationsMetadata)
			assert.Same(t, doc.Contents, d.Contents)
			assert.Equal(t, DefaultVersion, d.Version)
		}},
		{name: "case insensitive", sections: []string{"serviceidentification", "SERVICEPROVIDER"}, check: func(t *testing.T, d *Document) {
			assert.Same(t, doc.ServiceIdentification, d.ServiceIdentification)
			assert.Same(t, doc.ServiceProvider, d.ServiceProvider)
			assert.Nil(t, d.Contents)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doc.WithSections(tt.sections)
			require.NoError(t, err)
			if tt.same {
				assert.Same(t, doc, got)
				return
			}
			assert.NotSame(t, doc, got)
			tt.check(t, got)
		})
	}
	// the published document is untouched
	assert.NotNil(t, doc.ServiceIdentification)
	assert.NotNil(t, doc.Contents)
}

func TestDocument_WithSections_unknown(t *testing.T) {
	_, err := testDocument().WithSections([]string{"Contents", "Themes"})
	require.Error(t, err)
	fault := ows.AsFault(err)
	assert.Equal(t, ows.InvalidParameterValue, fault.Code)
	assert.Equal(t, "sections", fault.Locator)
}

func TestDocument_Layer(t *testing.T) {
	doc := testDocument()
	l, ok := doc.Layer("A")
	require.True(t, ok)
	assert.True(t, l.LinksTo("x"))
	assert.False(t, l.LinksTo("y"))
	_, ok = doc.Layer("B")
	assert.False(t, ok)
	assert.Empty(t, (&Document{}).TileMatrixSetIDs())
}
