// Package wmts is the entry point of the tiled map service: capabilities,
// tile resolution and invalidation behind one Service.
package wmts

import (
	"context"
	"log"
	"slices"

	"github.com/pdok/tilecaps/capabilities"
	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/ows"
	"github.com/pdok/tilecaps/source"
	"github.com/pdok/tilecaps/tile"
)

var supportedVersions = []string{capabilities.DefaultVersion}

type CapabilitiesResponse struct {
	Document *capabilities.Document
}

type TileResponse struct {
	Result *tile.Result
}

func (CapabilitiesResponse) response() {}
func (TileResponse) response()         {}

type Options struct {
	// Layers harvested concurrently during a rebuild
	Workers int
	Logger  *log.Logger
}

type Service struct {
	metadata capabilities.Metadata
	cache    *capabilities.Cache
	resolver *tile.Resolver
	logger   *log.Logger
}

func NewService(src source.Source, math geo.MathProvider, metadata capabilities.Metadata, options Options) *Service {
	if options.Logger == nil {
		options.Logger = log.Default()
	}
	builderOptions := []capabilities.BuilderOption{capabilities.WithLogger(options.Logger)}
	if options.Workers > 0 {
		builderOptions = append(builderOptions, capabilities.WithWorkers(options.Workers))
	}
	cache := capabilities.NewCache(capabilities.NewBuilder(src, math, metadata, builderOptions...), options.Logger)
	return &Service{
		metadata: metadata,
		cache:    cache,
		resolver: tile.NewResolver(cache, src, math, options.Logger),
		logger:   options.Logger,
	}
}

// Handle dispatches a request to GetCapabilities or ResolveTile.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	switch r := req.(type) {
	case GetCapabilities:
		doc, err := s.GetCapabilities(ctx, r.Version, r.Language, r.Sections)
		if err != nil {
			return nil, err
		}
		return CapabilitiesResponse{Document: doc}, nil
	case GetTile:
		key, err := s.key(r.Version, r.Language)
		if err != nil {
			return nil, err
		}
		result, err := s.ResolveTile(ctx, tile.Request{
			Key:           key,
			Layer:         r.Layer,
			TileMatrixSet: r.TileMatrixSet,
			TileMatrix:    r.TileMatrix,
			Column:        r.TileCol,
			Row:           r.TileRow,
			Format:        r.Format,
			Dimensions:    r.Dimensions,
			Extra:         r.Extra,
		})
		if err != nil {
			return nil, err
		}
		return TileResponse{Result: result}, nil
	default:
		return nil, ows.NotSupported("unknown")
	}
}

// GetCapabilities returns the cached document for version and language, limited
// to the requested sections.
func (s *Service) GetCapabilities(ctx context.Context, version, language string, sections []string) (*capabilities.Document, error) {
	key, err := s.key(version, language)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, ows.AsFault(err)
	}
	return snapshot.Document.WithSections(sections)
}

func (s *Service) ResolveTile(ctx context.Context, req tile.Request) (*tile.Result, error) {
	key, err := s.key(req.Key.Version, req.Key.Language)
	if err != nil {
		return nil, err
	}
	req.Key = key
	return s.resolver.Resolve(ctx, req)
}

// Invalidate drops the document of one version and language.
func (s *Service) Invalidate(version, language string) {
	key, err := s.key(version, language)
	if err != nil {
		return
	}
	s.cache.Invalidate(key)
}

func (s *Service) InvalidateAll() {
	s.cache.InvalidateAll()
}

// Rebuilds reports how many documents have been built.
func (s *Service) Rebuilds() int64 {
	return s.cache.Builds()
}

// key picks the cache key. Unsupported languages fall back to the default one.
func (s *Service) key(version, language string) (capabilities.Key, error) {
	if version == "" {
		version = s.metadata.DefaultVersion
	}
	if version == "" {
		version = capabilities.DefaultVersion
	}
	if !slices.Contains(supportedVersions, version) {
		return capabilities.Key{}, ows.InvalidParameter("version", "unsupported version %q", version)
	}
	if _, ok := s.metadata.Titles[language]; !ok {
		language = s.metadata.DefaultLanguage
	}
	return capabilities.Key{Version: version, Language: language}, nil
}
