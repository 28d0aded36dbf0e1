package wmts

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pdok/tilecaps/ows"
)

// Request is one of GetCapabilities or GetTile.
type Request interface {
	request()
}

type GetCapabilities struct {
	Version  string
	Language string
	Sections []string
}

type GetTile struct {
	Version       string
	Language      string
	Layer         string
	Style         string
	Format        string
	TileMatrixSet string
	TileMatrix    string
	TileRow       int64
	TileCol       int64
	// Dimensions as requested, keyed by parameter name
	Dimensions map[string]string
	// Other parameters, used only when they name a dimension of the layer
	Extra map[string]string
}

func (GetCapabilities) request() {}
func (GetTile) request()         {}

// Response is a CapabilitiesResponse or a TileResponse.
type Response interface {
	response()
}

// reserved KVP parameters
var reserved = map[string]bool{
	"service": true, "request": true, "version": true, "acceptversions": true, "language": true,
	"sections": true, "layer": true, "style": true, "format": true, "tilematrixset": true,
	"tilematrix": true, "tilerow": true, "tilecol": true,
}

// isDimension reports whether a parameter always names a dimension. Unrecognised
// parameters are ignored unless the layer has a dimension of that name.
func isDimension(param string) bool {
	return param == "time" || param == "elevation" || strings.HasPrefix(param, "dim_")
}

// ParseQuery reads a KVP encoded request. Parameter names are case-insensitive.
func ParseQuery(query url.Values) (Request, error) {
	params := make(map[string]string, len(query))
	var dimensions, extra map[string]string
	for name, values := range query {
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(name)
		params[lower] = values[0]
		switch {
		case reserved[lower]:
		case isDimension(lower):
			if dimensions == nil {
				dimensions = make(map[string]string)
			}
			dimensions[lower] = values[0]
		default:
			if extra == nil {
				extra = make(map[string]string)
			}
			extra[lower] = values[0]
		}
	}
	if service, ok := params["service"]; ok && !strings.EqualFold(service, "WMTS") {
		return nil, ows.InvalidParameter("service", "unsupported service %q", service)
	}

	switch strings.ToLower(params["request"]) {
	case "getcapabilities":
		version := params["version"]
		if accept, ok := params["acceptversions"]; ok && version == "" {
			version = strings.TrimSpace(strings.Split(accept, ",")[0])
		}
		var sections []string
		if s := params["sections"]; s != "" {
			sections = strings.Split(s, ",")
		}
		return GetCapabilities{Version: version, Language: params["language"], Sections: sections}, nil
	case "gettile":
		req := GetTile{
			Version:       params["version"],
			Language:      params["language"],
			Layer:         params["layer"],
			Style:         params["style"],
			Format:        params["format"],
			TileMatrixSet: params["tilematrixset"],
			TileMatrix:    params["tilematrix"],
			Dimensions:    dimensions,
			Extra:         extra,
		}
		for _, required := range []string{"layer", "tilematrixset", "tilematrix", "tilerow", "tilecol"} {
			if params[required] == "" {
				return nil, ows.InvalidParameter(required, "missing parameter %s", required)
			}
		}
		var err error
		if req.TileRow, err = parseIndex("tilerow", params["tilerow"]); err != nil {
			return nil, err
		}
		if req.TileCol, err = parseIndex("tilecol", params["tilecol"]); err != nil {
			return nil, err
		}
		return req, nil
	case "":
		return nil, ows.InvalidParameter("request", "missing parameter request")
	default:
		return nil, ows.NotSupported(params["request"])
	}
}

func parseIndex(param, value string) (int64, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, ows.InvalidParameter(param, "%q is not an integer", value)
	}
	return i, nil
}
