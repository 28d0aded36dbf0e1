// Package tms20 implements the OGC Tile Matrix Set standard (v2.0) data model
// as published in tiled capabilities documents.
// See https://www.ogc.org/standard/tms/
package tms20

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pdok/tilecaps/mathhelp"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/perimeterx/marshmallow"
)

// relative tolerance used when comparing against well-known tile matrix sets
const tolerance = 1e-9

var (
	//go:embed tilematrixsets/*.json
	embeddedTileMatrixSetsJSONFS embed.FS
	embeddedTileMatrixSetsCache  = make(map[string]*TileMatrixSet)
	embeddedTileMatrixSetsMu     sync.Mutex
)

func LoadJSONTileMatrixSet(path string) (TileMatrixSet, error) {
	var tms TileMatrixSet
	tmsJSON, err := os.ReadFile(path)
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	return tms, err
}

func LoadEmbeddedTileMatrixSet(id string) (TileMatrixSet, error) {
	embeddedTileMatrixSetsMu.Lock()
	defer embeddedTileMatrixSetsMu.Unlock()

	var tms TileMatrixSet
	cached, ok := embeddedTileMatrixSetsCache[id]
	if ok {
		return cached.Clone(), nil
	}
	tmsJSON, err := embeddedTileMatrixSetsJSONFS.ReadFile("tilematrixsets/" + id + ".json")
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	if err != nil {
		return tms, fmt.Errorf("could not load tile matrix set %v: %w", id, err)
	}
	embeddedTileMatrixSetsCache[id] = &tms
	return tms.Clone(), nil
}

// EmbeddedTileMatrixSetIDs lists the well-known tile matrix sets shipped with this package.
func EmbeddedTileMatrixSetIDs() ([]string, error) {
	entries, err := fs.ReadDir(embeddedTileMatrixSetsJSONFS, "tilematrixsets")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
	}
	sort.Strings(ids)
	return ids, nil
}

// TileMatrixSet is a definition of a tile matrix set following the Tile Matrix Set standard.
type TileMatrixSet struct {
	// Tile matrix set identifier. In a capabilities document this is the exposed identifier.
	ID string `json:"id,omitempty"`
	// Title of this tile matrix set, normally used for display to a human
	Title string `json:"title,omitempty"`
	// Brief narrative description of this tile matrix set, normally available for display to a human
	Description string `json:"description,omitempty"`
	// Unordered list of one or more commonly used or formalized word(s) or phrase(s) used to describe this tile matrix set
	Keywords []string `json:"keywords,omitempty"`
	// Reference to an official source for this TileMatrixSet
	URI         string   `validate:"omitempty,uri" json:"uri,omitempty"`
	OrderedAxes []string `validate:"omitnil,min=1" json:"orderedAxes,omitempty"`
	// Coordinate Reference System (CRS)
	CRS CRS `validate:"required" json:"-"`
	// Reference to a well-known scale set
	WellKnownScaleSet string `validate:"omitempty,uri" json:"wellKnownScaleSet,omitempty"`
	// Minimum bounding rectangle surrounding the tile matrix set, in the supported CRS
	BoundingBox *TwoDBoundingBox `json:"boundingBox,omitempty"`
	// Describes scale levels and its tile matrices, ordered by descending scale denominator
	TileMatrices []TileMatrix `validate:"required,min=1,dive" json:"-"`
}

func (tms *TileMatrixSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TileMatrixSet                    // not a pointer, because it would cause recursion to this function
		SpecialCRS          *CRS         `json:"crs"` // pointer, because crs' structs' MarshalJSON funcs are on pointer
		SpecialTileMatrices []TileMatrix `json:"tileMatrices"`
	}{
		TileMatrixSet:       *tms,
		SpecialCRS:          &tms.CRS,
		SpecialTileMatrices: tms.TileMatrices,
	})
}

func (tms *TileMatrixSet) UnmarshalJSON(data []byte) error {
	err := defaults.Set(tms)
	if err != nil {
		return err
	}

	specials, err := marshmallow.Unmarshal(data, tms, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	// CRS
	rawCrs, ok := specials["crs"]
	if !ok {
		return fmt.Errorf(`missing key "crs"`)
	}
	tms.CRS, err = unmarshalCRS(rawCrs)
	if err != nil {
		return err
	}

	// TileMatrices
	rawTileMatrices, ok := specials["tileMatrices"]
	if !ok {
		return fmt.Errorf(`missing key "tileMatrices"`)
	}
	tms.TileMatrices, err = unmarshalTileMatrices(rawTileMatrices)
	if err != nil {
		return err
	}
	SortTileMatrices(tms.TileMatrices)

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tms)
}

func unmarshalTileMatrices(rawTileMatrices interface{}) ([]TileMatrix, error) {
	rawTileMatricesList, ok := rawTileMatrices.([]interface{})
	if !ok {
		return nil, fmt.Errorf(`"tileMatrices" should be an array`)
	}
	tileMatrices := make([]TileMatrix, 0, len(rawTileMatricesList))
	seen := make(map[string]struct{}, len(rawTileMatricesList))
	for _, rawTileMatrix := range rawTileMatricesList {
		rawTileMatrixMap, ok := rawTileMatrix.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf(`"tileMatrices" should be objects`)
		}
		var tileMatrix TileMatrix
		err := tileMatrix.UnmarshalJSONFromMap(rawTileMatrixMap)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[tileMatrix.ID]; dup {
			return nil, fmt.Errorf("duplicate tile matrix id %q", tileMatrix.ID)
		}
		seen[tileMatrix.ID] = struct{}{}
		tileMatrices = append(tileMatrices, tileMatrix)
	}
	return tileMatrices, nil
}

// SortTileMatrices orders tile matrices by descending scale denominator (coarsest first).
func SortTileMatrices(tileMatrices []TileMatrix) {
	sort.SliceStable(tileMatrices, func(i, j int) bool {
		return tileMatrices[i].ScaleDenominator > tileMatrices[j].ScaleDenominator
	})
}

// Clone returns a copy that shares no slices with tms.
func (tms TileMatrixSet) Clone() TileMatrixSet {
	c := tms
	c.Keywords = append([]string(nil), tms.Keywords...)
	c.OrderedAxes = append([]string(nil), tms.OrderedAxes...)
	c.TileMatrices = append([]TileMatrix(nil), tms.TileMatrices...)
	if tms.BoundingBox != nil {
		bb := *tms.BoundingBox
		c.BoundingBox = &bb
	}
	return c
}

// CRSCode is the code of the supported CRS, e.g. "EPSG:3857".
func (tms *TileMatrixSet) CRSCode() string {
	return CRSCode(tms.CRS)
}

// Matrix returns the tile matrix with the given identifier.
func (tms *TileMatrixSet) Matrix(id string) (*TileMatrix, bool) {
	for i := range tms.TileMatrices {
		if tms.TileMatrices[i].ID == id {
			return &tms.TileMatrices[i], true
		}
	}
	return nil, false
}

// Equal compares the tiling scheme: supported CRS, bounding box and the ordered tile matrices.
// Identifier and descriptive properties are ignored.
func (tms *TileMatrixSet) Equal(other *TileMatrixSet) bool {
	if tms == nil || other == nil {
		return tms == other
	}
	if tms.CRSCode() != other.CRSCode() {
		return false
	}
	if !tms.BoundingBox.Equal(other.BoundingBox) {
		return false
	}
	if len(tms.TileMatrices) != len(other.TileMatrices) {
		return false
	}
	for i := range tms.TileMatrices {
		if !tms.TileMatrices[i].Equal(&other.TileMatrices[i]) {
			return false
		}
	}
	return true
}

// Conforms reports whether every tile matrix of tms is also a tile matrix of wellKnown
// (same id and tile size, same scale and origin within a relative tolerance).
func (tms *TileMatrixSet) Conforms(wellKnown *TileMatrixSet) bool {
	if tms == nil || wellKnown == nil || len(tms.TileMatrices) == 0 {
		return false
	}
	if canonicalCode(tms.CRSCode()) != canonicalCode(wellKnown.CRSCode()) {
		return false
	}
	for i := range tms.TileMatrices {
		tm := &tms.TileMatrices[i]
		wk, ok := wellKnown.Matrix(tm.ID)
		if !ok {
			return false
		}
		if tm.TileWidth != wk.TileWidth || tm.TileHeight != wk.TileHeight || tm.CornerOfOrigin != wk.CornerOfOrigin {
			return false
		}
		if !mathhelp.AlmostEqual(tm.ScaleDenominator, wk.ScaleDenominator, tolerance) ||
			!mathhelp.AlmostEqual(tm.PointOfOrigin[0], wk.PointOfOrigin[0], tolerance) ||
			!mathhelp.AlmostEqual(tm.PointOfOrigin[1], wk.PointOfOrigin[1], tolerance) {
			return false
		}
	}
	return true
}

// Minimum bounding rectangle surrounding a 2D resource in the CRS indicated elsewhere
type TwoDBoundingBox struct {
	LowerLeft   TwoDPoint `json:"lowerLeft"`
	UpperRight  TwoDPoint `json:"upperRight"`
	CRS         CRS       `json:"-"`
	OrderedAxes []string  `validate:"omitempty,len=2" json:"orderedAxes,omitempty"`
}

func (bb *TwoDBoundingBox) MarshalJSON() ([]byte, error) {
	var specialCRS *CRS
	if bb.CRS != nil {
		specialCRS = &bb.CRS
	}
	return json.Marshal(struct {
		TwoDBoundingBox      // not a pointer, because it would cause recursion to this function
		SpecialCRS      *CRS `json:"crs,omitempty"` // pointer, because crs' structs' MarshalJSON funcs are on pointer
	}{
		TwoDBoundingBox: *bb,
		SpecialCRS:      specialCRS,
	})
}

func (bb *TwoDBoundingBox) UnmarshalJSON(data []byte) error {
	err := defaults.Set(bb)
	if err != nil {
		return err
	}

	specials, err := marshmallow.Unmarshal(data, bb, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	if rawCrs, ok := specials["crs"]; ok {
		bb.CRS, err = unmarshalCRS(rawCrs)
		if err != nil {
			return err
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(bb)
}

// Equal compares corners and CRS code. Two absent bounding boxes are equal.
func (bb *TwoDBoundingBox) Equal(other *TwoDBoundingBox) bool {
	if bb == nil || other == nil {
		return bb == other
	}
	return bb.LowerLeft == other.LowerLeft && bb.UpperRight == other.UpperRight && CRSCode(bb.CRS) == CRSCode(other.CRS)
}

// A 2D Point in the CRS indicated elsewhere
type TwoDPoint [2]float64

func (p TwoDPoint) XY() [2]float64 {
	return p
}

func UnmarshalJSONMapUsingUnmarshalJSONFromMap(target marshmallow.UnmarshalerFromJSONMap, data []byte) error {
	var dataMap interface{}
	err := json.Unmarshal(data, &dataMap)
	if err != nil {
		return err
	}
	return target.UnmarshalJSONFromMap(dataMap)
}
