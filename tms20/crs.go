package tms20

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

type CRS interface {
	Description() string
	AuthorityName() string
	AuthorityCode() string
}

// CRSCode returns "AUTHORITY:CODE", or just the code when there is no authority.
func CRSCode(crs CRS) string {
	if crs == nil {
		return ""
	}
	if crs.AuthorityName() == "" {
		return crs.AuthorityCode()
	}
	return crs.AuthorityName() + ":" + crs.AuthorityCode()
}

func canonicalCode(code string) string {
	switch strings.ToUpper(code) {
	case "OGC:CRS84", "CRS:84":
		return "CRS:84"
	}
	return strings.ToUpper(code)
}

// unmarshalCRS accepts a plain URI string or an object with an "uri" property.
func unmarshalCRS(rawCrs interface{}) (CRS, error) {
	var rawCrsMap map[string]interface{}
	rawCrsString, asString := rawCrs.(string)
	if asString {
		rawCrsMap = map[string]interface{}{"uri": rawCrsString}
	} else {
		var ok bool
		rawCrsMap, ok = rawCrs.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf(`wrong type key "crs": %T`, rawCrs)
		}
	}

	var uriCrs URICRS
	err := uriCrs.UnmarshalJSONFromMap(rawCrsMap)
	if err != nil {
		return nil, fmt.Errorf(`could not unmarshal crs: %w`, err)
	}
	uriCrs.asString = asString
	return &uriCrs, nil
}

var (
	crsURIRegexURL = regexp.MustCompile("https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+):[^:]*:(?P<code>[^:]+)$")
)

type URICRS struct {
	description string
	// Reference to one coordinate reference system (CRS)
	uri           string `validate:"required,uri"`
	authorityName string `validate:"required"`
	authorityCode string `validate:"required"`
	// Whether it should be marshalled as just a string
	asString bool
}

func (crs *URICRS) MarshalJSON() ([]byte, error) {
	if crs.asString {
		return json.Marshal(crs.uri)
	}
	return json.Marshal(struct {
		Description string `json:"description,omitempty"`
		URI         string `json:"uri"`
	}{
		Description: crs.description,
		URI:         crs.uri,
	})
}

func (crs *URICRS) UnmarshalJSON(data []byte) error {
	return UnmarshalJSONMapUsingUnmarshalJSONFromMap(crs, data)
}

func (crs *URICRS) UnmarshalJSONFromMap(data interface{}) error {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf(`data is not a map but a %T`, data)
	}

	rawDescription, ok := dataMap["description"]
	if ok {
		crs.description, ok = rawDescription.(string)
		if !ok {
			return fmt.Errorf(`description property is not a string but a %T`, rawDescription)
		}
	}

	rawURI, ok := dataMap["uri"]
	if !ok {
		return fmt.Errorf(`uri property not found`)
	}
	crs.uri, ok = rawURI.(string)
	if !ok {
		return fmt.Errorf(`uri property is not a string but a %T`, rawURI)
	}

	uriParts := crsURIRegexURL.FindStringSubmatch(crs.uri)
	if uriParts == nil {
		uriParts = crsURIRegexURN.FindStringSubmatch(crs.uri)
	}
	if uriParts == nil {
		return fmt.Errorf(`could not parse crs uri "%v"`, crs.uri)
	}
	crs.authorityName = uriParts[1]
	crs.authorityCode = uriParts[2]

	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(crs)
}

func (crs *URICRS) Description() string {
	return crs.description
}

func (crs *URICRS) AuthorityName() string {
	return crs.authorityName
}

func (crs *URICRS) AuthorityCode() string {
	return crs.authorityCode
}

// CodeCRS is a CRS known only by its code, e.g. "EPSG:3857" as reported by a math provider.
type CodeCRS struct {
	code string
}

func NewCodeCRS(code string) *CodeCRS {
	return &CodeCRS{code: code}
}

// MarshalJSON writes the OGC definition URI when the code has an authority.
func (crs *CodeCRS) MarshalJSON() ([]byte, error) {
	switch {
	case canonicalCode(crs.code) == "CRS:84":
		return json.Marshal("http://www.opengis.net/def/crs/OGC/1.3/CRS84")
	case crs.AuthorityName() != "":
		return json.Marshal(fmt.Sprintf("http://www.opengis.net/def/crs/%s/0/%s", crs.AuthorityName(), crs.AuthorityCode()))
	}
	return json.Marshal(crs.code)
}

func (crs *CodeCRS) Description() string {
	return ""
}

func (crs *CodeCRS) AuthorityName() string {
	if i := strings.LastIndex(crs.code, ":"); i > 0 {
		return crs.code[:i]
	}
	return ""
}

func (crs *CodeCRS) AuthorityCode() string {
	if i := strings.LastIndex(crs.code, ":"); i > 0 {
		return crs.code[i+1:]
	}
	return crs.code
}
