package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"

	"github.com/pdok/tilecaps/capabilities"
	"github.com/pdok/tilecaps/catalog"
	"github.com/pdok/tilecaps/config"
	"github.com/pdok/tilecaps/geo"
	"github.com/pdok/tilecaps/source/gpkg"
	"github.com/pdok/tilecaps/tile"
	"github.com/pdok/tilecaps/wmts"

	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"
)

const CONFIG string = `config`
const CATALOG string = `catalog`
const LANGUAGE string = `language`
const VERSION string = `wmtsVersion`
const SECTIONS string = `sections`
const LAYER string = `layer`
const TILEMATRIXSET string = `tilematrixset`
const TILEMATRIX string = `tilematrix`
const TILECOL string = `tilecol`
const TILEROW string = `tilerow`
const FORMAT string = `format`
const DIMENSION string = `dimension`
const OUTPUT string = `output`

var logger = log.New(os.Stderr, "TILECAPS: ", log.Ldate|log.Ltime|log.Lshortfile)

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "tilecaps"
	app.Usage = "Capabilities and tiles of a tiled map service over GeoPackage pyramids"
	app.Version = versioninfo.Short()

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     CONFIG,
			Aliases:  []string{"c"},
			Usage:    "YAML config file",
			Required: true,
			EnvVars:  []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.StringFlag{
			Name:    CATALOG,
			Usage:   "Catalog database, overrides catalog.path of the config",
			EnvVars: []string{strcase.ToScreamingSnake(CATALOG)},
		},
	}

	keyFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    VERSION,
			Usage:   "Service version",
			EnvVars: []string{strcase.ToScreamingSnake(VERSION)},
		},
		&cli.StringFlag{
			Name:    LANGUAGE,
			Aliases: []string{"l"},
			Usage:   "Language, falls back to the first configured one",
			EnvVars: []string{strcase.ToScreamingSnake(LANGUAGE)},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "capabilities",
			Usage: "Print the capabilities document as JSON",
			Flags: append([]cli.Flag{
				&cli.StringSliceFlag{
					Name:  SECTIONS,
					Usage: "Sections to include. E.g.: --sections Contents --sections ServiceIdentification",
				},
			}, keyFlags...),
			Action: func(c *cli.Context) error {
				return withService(c, func(ctx context.Context, svc *wmts.Service) error {
					doc, err := svc.GetCapabilities(ctx, c.String(VERSION), c.String(LANGUAGE), c.StringSlice(SECTIONS))
					if err != nil {
						return err
					}
					return printJSON(doc)
				})
			},
		},
		{
			Name:  "tile",
			Usage: "Resolve a tile and write it to a file",
			Flags: append([]cli.Flag{
				&cli.StringFlag{Name: LAYER, Required: true},
				&cli.StringFlag{Name: TILEMATRIXSET, Aliases: []string{"tms"}, Required: true},
				&cli.StringFlag{Name: TILEMATRIX, Aliases: []string{"z"}, Required: true},
				&cli.Int64Flag{Name: TILECOL, Aliases: []string{"x"}},
				&cli.Int64Flag{Name: TILEROW, Aliases: []string{"y"}},
				&cli.StringFlag{Name: FORMAT, Usage: "MIME type or extension of the tile"},
				&cli.StringSliceFlag{Name: DIMENSION, Usage: "Dimension value. E.g.: --dimension time=2022-01-08"},
				&cli.StringFlag{Name: OUTPUT, Aliases: []string{"o"}, Usage: "File to write the tile to"},
			}, keyFlags...),
			Action: func(c *cli.Context) error {
				dimensions, err := parseDimensions(c.StringSlice(DIMENSION))
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *wmts.Service) error {
					result, err := svc.ResolveTile(ctx, tileRequest(c, dimensions))
					if err != nil {
						return err
					}
					printTile(result)
					if c.String(OUTPUT) == "" || result.Missing {
						return nil
					}
					return os.WriteFile(c.String(OUTPUT), result.Data, 0o644) //nolint:gosec
				})
			},
		},
		{
			Name:      "request",
			Usage:     "Handle a KVP request. E.g.: 'SERVICE=WMTS&REQUEST=GetTile&LAYER=top&...'",
			ArgsUsage: "QUERY",
			Action: func(c *cli.Context) error {
				query, err := url.ParseQuery(strings.TrimPrefix(c.Args().First(), "?"))
				if err != nil {
					return err
				}
				req, err := wmts.ParseQuery(query)
				if err != nil {
					return err
				}
				return withService(c, func(ctx context.Context, svc *wmts.Service) error {
					resp, err := svc.Handle(ctx, req)
					if err != nil {
						return err
					}
					switch r := resp.(type) {
					case wmts.CapabilitiesResponse:
						return printJSON(r.Document)
					case wmts.TileResponse:
						printTile(r.Result)
					}
					return nil
				})
			},
		},
		layersCommand(),
		tileMatrixSetsCommand(),
	}

	err := app.Run(os.Args)
	if err != nil {
		logger.Fatal(err)
	}
}

// withService opens the catalog, seeds it from the config and runs f on a service
// over the enabled layers.
func withService(c *cli.Context, f func(context.Context, *wmts.Service) error) error {
	cfg, cat, err := openCatalog(c)
	if err != nil {
		return err
	}
	defer cat.Close()

	src := catalog.NewSource(cat, gpkg.Options{TileCacheSize: cfg.TileCacheSize, Logger: logger})
	defer src.Close()

	svc := wmts.NewService(src, geo.NewProvider(), cfg.Metadata(), wmts.Options{Workers: cfg.Workers, Logger: logger})
	return f(c.Context, svc)
}

func openCatalog(c *cli.Context) (*config.Config, *catalog.Catalog, error) {
	cfg, err := config.Load(c.String(CONFIG))
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Catalog.Path
	if c.String(CATALOG) != "" {
		path = c.String(CATALOG)
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return nil, nil, err
	}
	added, err := cfg.Seed(cat)
	if err != nil {
		_ = cat.Close()
		return nil, nil, err
	}
	if added > 0 {
		logger.Printf("added %d layers from %s to the catalog", added, c.String(CONFIG))
	}
	return cfg, cat, nil
}

func tileRequest(c *cli.Context, dimensions map[string]string) tile.Request {
	return tile.Request{
		Key:           capabilities.Key{Version: c.String(VERSION), Language: c.String(LANGUAGE)},
		Layer:         c.String(LAYER),
		TileMatrixSet: c.String(TILEMATRIXSET),
		TileMatrix:    c.String(TILEMATRIX),
		Column:        c.Int64(TILECOL),
		Row:           c.Int64(TILEROW),
		Format:        c.String(FORMAT),
		Dimensions:    dimensions,
	}
}

func parseDimensions(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	dimensions := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("dimension %q is not of the form name=value", v)
		}
		dimensions[name] = value
	}
	return dimensions, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printTile(r *tile.Result) {
	status := "present"
	if r.Missing {
		status = "missing"
	}
	fmt.Printf("%s %s/%s/%d/%d (pyramid %s, level %s, slice %s): %s, %d bytes\n",
		r.Layer, r.TileMatrixSet, r.TileMatrix, r.Column, r.Row, r.PyramidID, r.Level, r.SliceID, status, len(r.Data))
	fmt.Printf("extent %v\n", r.Extent)
}

var errUsage = errors.New("wrong number of arguments")
