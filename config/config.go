// Package config reads the YAML configuration of the service.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/pdok/tilecaps/capabilities"
	"github.com/pdok/tilecaps/catalog"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Service Service `yaml:"service"`
	Catalog Catalog `yaml:"catalog"`
	// Layers added to the catalog when it does not know them yet
	Layers        []Layer `yaml:"layers" validate:"dive"`
	TileCacheSize int     `yaml:"tileCacheSize" default:"1024" validate:"gt=0"`
	Workers       int     `yaml:"workers" default:"4" validate:"gt=0"`
}

type Service struct {
	// Texts keyed by language
	Title          map[string]string `yaml:"title" validate:"required,min=1"`
	Abstract       map[string]string `yaml:"abstract"`
	Keywords       []string          `yaml:"keywords"`
	Provider       Provider          `yaml:"provider"`
	BaseURL        string            `yaml:"baseUrl" validate:"required,url"`
	DefaultVersion string            `yaml:"defaultVersion" default:"1.0.0" validate:"oneof=1.0.0"`
	// The first language is the default one
	Languages      []string `yaml:"languages" default:"[\"en\"]" validate:"min=1"`
	TileMatrixSets []string `yaml:"tileMatrixSets"`
}

type Provider struct {
	Name string `yaml:"name"`
	Site string `yaml:"site" validate:"omitempty,url"`
}

type Catalog struct {
	Path string `yaml:"path" default:"tilecaps.db"`
}

type Layer struct {
	Name       string `yaml:"name" validate:"required"`
	Title      string `yaml:"title"`
	Abstract   string `yaml:"abstract"`
	Keywords   string `yaml:"keywords"`
	GeoPackage string `yaml:"geopackage" validate:"required"`
	Table      string `yaml:"table" validate:"required"`
	Disabled   bool   `yaml:"disabled"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("could not set config defaults: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, language := range c.Service.Languages {
		if _, ok := c.Service.Title[language]; !ok {
			return nil, fmt.Errorf("invalid config: no title for language %s", language)
		}
	}
	for i, l := range c.Layers {
		if slices.ContainsFunc(c.Layers[:i], func(other Layer) bool { return other.Name == l.Name }) {
			return nil, fmt.Errorf("invalid config: layer %s listed twice", l.Name)
		}
	}
	return &c, nil
}

// Metadata returns the service metadata of the first language and the titles and
// abstracts of all configured languages.
func (c *Config) Metadata() capabilities.Metadata {
	m := capabilities.Metadata{
		DefaultVersion:  c.Service.DefaultVersion,
		DefaultLanguage: c.Service.Languages[0],
		Titles:          make(map[string]string),
		Abstracts:       make(map[string]string),
		Keywords:        c.Service.Keywords,
		ProviderName:    c.Service.Provider.Name,
		ProviderSite:    c.Service.Provider.Site,
		BaseURL:         c.Service.BaseURL,
		TileMatrixSets:  c.Service.TileMatrixSets,
	}
	for _, language := range c.Service.Languages {
		m.Titles[language] = c.Service.Title[language]
		if abstract, ok := c.Service.Abstract[language]; ok {
			m.Abstracts[language] = abstract
		}
	}
	return m
}

// CatalogLayer converts a configured layer into a catalog record.
func (l Layer) CatalogLayer() *catalog.Layer {
	return &catalog.Layer{
		Name:       l.Name,
		Title:      l.Title,
		Abstract:   l.Abstract,
		Keywords:   l.Keywords,
		GeoPackage: l.GeoPackage,
		Table:      l.Table,
		Enabled:    !l.Disabled,
	}
}

// Seed adds the configured layers the catalog does not know yet and returns how
// many were added. Known layers are left as they are.
func (c *Config) Seed(cat *catalog.Catalog) (int, error) {
	added := 0
	for _, l := range c.Layers {
		_, err := cat.Get(l.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return added, err
		}
		if err = cat.Create(l.CatalogLayer()); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
