package tms20

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"github.com/perimeterx/marshmallow"
)

// A tile matrix, usually corresponding to a particular zoom level of a TileMatrixSet.
type TileMatrix struct {
	// Identifier selecting one of the scales defined in the TileMatrixSet and representing the scaleDenominator the tile.
	// Implementation of 'identifier'
	ID string `validate:"required" json:"id"`
	// Title of this tile matrix, normally used for display to a human
	Title string `json:"title,omitempty"`
	// Brief narrative description of this tile matrix set, normally available for display to a human
	Description string `json:"description,omitempty"`
	// Unordered list of one or more commonly used or formalized word(s) or phrase(s) used to describe this dataset
	Keywords []string `json:"keywords,omitempty"`
	// Scale denominator of this tile matrix
	ScaleDenominator float64 `validate:"required,gt=0" json:"scaleDenominator"`
	// Cell size of this tile matrix
	CellSize float64 `validate:"required,gt=0" json:"cellSize"`
	// The corner of the tile matrix (_topLeft_ or _bottomLeft_) used as the origin for numbering tile rows and columns.
	// This corner is also a corner of the (0, 0) tile.
	CornerOfOrigin CornerOfOrigin `default:"topLeft" validate:"omitempty,oneof=topLeft bottomLeft" json:"cornerOfOrigin,omitempty"`
	// Precise position in CRS coordinates of the corner of origin (e.g. the top-left corner) for this tile matrix.
	PointOfOrigin TwoDPoint `json:"pointOfOrigin"`
	// Width of each tile of this tile matrix in pixels
	TileWidth uint `validate:"required,min=1" json:"tileWidth"`
	// Height of each tile of this tile matrix in pixels
	TileHeight uint `validate:"required,min=1" json:"tileHeight"`
	// Width of the matrix (number of tiles in width)
	MatrixWidth uint `validate:"required,min=1" json:"matrixWidth"`
	// Height of the matrix (number of tiles in height)
	MatrixHeight uint `validate:"required,min=1" json:"matrixHeight"`
	// Describes the rows that have variable matrix width
	VariableMatrixWidths []VariableMatrixWidth `json:"variableMatrixWidths,omitempty"`
}

func (tm *TileMatrix) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(tm, data)
}

func (tm *TileMatrix) UnmarshalJSONFromMap(data interface{}) error {
	err := defaults.Set(tm)
	if err != nil {
		return err
	}

	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`data is not a map but a %T`, data)
	}

	// (0, 0) is a valid origin, so presence is checked on the key
	if _, ok := dataMap["pointOfOrigin"]; !ok {
		return fmt.Errorf(`missing key "pointOfOrigin"`)
	}
	_, err = marshmallow.UnmarshalFromJSONMap(dataMap, tm, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(tm)
}

// Equal compares what makes up the tiling scheme of a zoom level: identifier, scale,
// matrix and tile sizes and the corner of origin. Descriptive properties and the
// derived cell size are ignored.
func (tm *TileMatrix) Equal(other *TileMatrix) bool {
	if tm == nil || other == nil {
		return tm == other
	}
	return tm.ID == other.ID &&
		tm.ScaleDenominator == other.ScaleDenominator &&
		tm.MatrixWidth == other.MatrixWidth &&
		tm.MatrixHeight == other.MatrixHeight &&
		tm.TileWidth == other.TileWidth &&
		tm.TileHeight == other.TileHeight &&
		tm.corner() == other.corner() &&
		tm.PointOfOrigin == other.PointOfOrigin
}

func (tm *TileMatrix) corner() CornerOfOrigin {
	if tm.CornerOfOrigin == "" {
		return TopLeft
	}
	return tm.CornerOfOrigin
}

// TileExtent returns the native extent of the tile at col, row.
func (tm *TileMatrix) TileExtent(col, row uint) (geom.Extent, bool) {
	if col >= tm.MatrixWidth || row >= tm.MatrixHeight {
		return geom.Extent{}, false
	}
	if tm.VariableMatrixWidths != nil {
		// TODO coalesce tiles of rows listed in VariableMatrixWidths
		return geom.Extent{}, false
	}

	tileSizeX := float64(tm.TileWidth) * tm.CellSize
	tileSizeY := float64(tm.TileHeight) * tm.CellSize
	minX := tm.PointOfOrigin.XY()[0] + float64(col)*tileSizeX
	var minY float64
	switch tm.corner() {
	case BottomLeft:
		minY = tm.PointOfOrigin.XY()[1] + float64(row)*tileSizeY
	default:
		minY = tm.PointOfOrigin.XY()[1] - float64(row+1)*tileSizeY
	}
	return geom.Extent{minX, minY, minX + tileSizeX, minY + tileSizeY}, true
}

// Extent returns the native extent covered by the whole matrix.
func (tm *TileMatrix) Extent() geom.Extent {
	width := float64(tm.MatrixWidth*tm.TileWidth) * tm.CellSize
	height := float64(tm.MatrixHeight*tm.TileHeight) * tm.CellSize
	x, y := tm.PointOfOrigin.XY()[0], tm.PointOfOrigin.XY()[1]
	if tm.corner() == BottomLeft {
		return geom.Extent{x, y, x + width, y + height}
	}
	return geom.Extent{x, y - height, x + width, y}
}

type CornerOfOrigin string

const (
	TopLeft    CornerOfOrigin = "topLeft"
	BottomLeft CornerOfOrigin = "bottomLeft"
)

func (c *CornerOfOrigin) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(c, data)
}

func (c *CornerOfOrigin) UnmarshalJSONFromMap(data interface{}) error {
	dataString, ok := data.(string)
	if !ok {
		return fmt.Errorf(`CornerOfOrigin data is not a string but a %T`, data)
	}
	switch dataString {
	case "":
		fallthrough
	case string(TopLeft):
		*c = TopLeft
	case string(BottomLeft):
		*c = BottomLeft
	default:
		return fmt.Errorf(`unknown CornerOfOrigin: %v`, data)
	}
	return nil
}

// Variable Matrix Width data structure
type VariableMatrixWidth struct {
	// Number of tiles in width that coalesce in a single tile for these rows
	Coalesce uint `validate:"required,min=2" json:"coalesce"`
	// First tile row where the coalescence factor applies for this tilematrix
	MinTileRow uint `validate:"min=0" json:"minTileRow"`
	// Last tile row where the coalescence factor applies for this tilematrix
	MaxTileRow uint `validate:"min=0" json:"maxTileRow"`
}
