package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/source/gpkg"

	"golang.org/x/sync/singleflight"
)

// Source serves the enabled layers of a catalog. Each GeoPackage is opened once
// and kept open until Close.
type Source struct {
	catalog  *Catalog
	options  gpkg.Options
	mu       sync.Mutex
	packages map[string]*gpkg.Source
	opening  singleflight.Group
}

func NewSource(catalog *Catalog, options gpkg.Options) *Source {
	return &Source{catalog: catalog, options: options, packages: make(map[string]*gpkg.Source)}
}

func (s *Source) Layers(_ context.Context) ([]source.Layer, error) {
	records, err := s.catalog.List(true)
	if err != nil {
		return nil, err
	}
	layers := make([]source.Layer, 0, len(records))
	for _, r := range records {
		layers = append(layers, source.Layer{Name: r.Name, Title: r.Title, Abstract: r.Abstract, Keywords: r.KeywordList()})
	}
	return layers, nil
}

// Pyramids returns the pyramid of the layer's tiles table, named after the layer.
func (s *Source) Pyramids(ctx context.Context, layer string) ([]*source.Pyramid, error) {
	record, err := s.catalog.Get(layer)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%w: %s", source.ErrLayerNotFound, layer)
	case err != nil:
		return nil, err
	case !record.Enabled:
		return nil, fmt.Errorf("%w: %s is disabled", source.ErrLayerNotFound, layer)
	}
	pkg, err := s.geoPackage(record.GeoPackage)
	if err != nil {
		return nil, err
	}
	pyramids, err := pkg.Pyramids(ctx, record.Table)
	if err != nil {
		return nil, err
	}
	named := make([]*source.Pyramid, 0, len(pyramids))
	for _, p := range pyramids {
		clone := *p
		clone.ID = record.Name
		named = append(named, &clone)
	}
	return named, nil
}

func (s *Source) geoPackage(path string) (*gpkg.Source, error) {
	s.mu.Lock()
	pkg, ok := s.packages[path]
	s.mu.Unlock()
	if ok {
		return pkg, nil
	}
	opened, err, _ := s.opening.Do(path, func() (any, error) {
		s.mu.Lock()
		if pkg, ok := s.packages[path]; ok {
			s.mu.Unlock()
			return pkg, nil
		}
		s.mu.Unlock()
		pkg, err := gpkg.Open(path, s.options)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.packages[path] = pkg
		s.mu.Unlock()
		return pkg, nil
	})
	if err != nil {
		return nil, err
	}
	return opened.(*gpkg.Source), nil
}

// Opened reports how many GeoPackages are open.
func (s *Source) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packages)
}

// Close closes the GeoPackages, not the catalog.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for path, pkg := range s.packages {
		errs = append(errs, pkg.Close())
		delete(s.packages, path)
	}
	return errors.Join(errs...)
}
