package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pdok/tilecaps/catalog"
	"github.com/pdok/tilecaps/tms20"

	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/urfave/cli/v2"
)

const NAME string = `name`
const TITLE string = `title`
const ABSTRACT string = `abstract`
const KEYWORDS string = `keywords`
const GEOPACKAGE string = `geopackage`
const TABLE string = `table`
const DISABLED string = `disabled`
const FILE string = `file`

const columnWidth = 40
const textWidth = 80

//nolint:funlen
func layersCommand() *cli.Command {
	return &cli.Command{
		Name:  "layers",
		Usage: "Manage the layers of the catalog",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all layers",
				Action: func(c *cli.Context) error {
					_, cat, err := openCatalog(c)
					if err != nil {
						return err
					}
					defer cat.Close()
					layers, err := cat.List(false)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "NAME\tENABLED\tTITLE\tGEOPACKAGE\tTABLE")
					for _, l := range layers {
						fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", l.Name, l.Enabled,
							truncate.StringWithTail(l.Title, columnWidth, "..."),
							truncate.StringWithTail(l.GeoPackage, columnWidth, "..."), l.Table)
					}
					return w.Flush()
				},
			},
			{
				Name:  "add",
				Usage: "Add a layer",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: NAME, Required: true},
					&cli.StringFlag{Name: GEOPACKAGE, Aliases: []string{"g"}, Required: true},
					&cli.StringFlag{Name: TABLE, Aliases: []string{"t"}, Usage: "Tiles table, defaults to the layer name"},
					&cli.StringFlag{Name: TITLE},
					&cli.StringFlag{Name: ABSTRACT},
					&cli.StringFlag{Name: KEYWORDS, Usage: "Comma separated keywords"},
					&cli.BoolFlag{Name: DISABLED, Usage: "Add the layer without publishing it"},
				},
				Action: func(c *cli.Context) error {
					_, cat, err := openCatalog(c)
					if err != nil {
						return err
					}
					defer cat.Close()
					table := c.String(TABLE)
					if table == "" {
						table = c.String(NAME)
					}
					return cat.Create(&catalog.Layer{
						Name:       c.String(NAME),
						Title:      c.String(TITLE),
						Abstract:   c.String(ABSTRACT),
						Keywords:   c.String(KEYWORDS),
						GeoPackage: c.String(GEOPACKAGE),
						Table:      table,
						Enabled:    !c.Bool(DISABLED),
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a layer",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errUsage
					}
					_, cat, err := openCatalog(c)
					if err != nil {
						return err
					}
					defer cat.Close()
					return cat.Delete(c.Args().First())
				},
			},
			{
				Name:      "enable",
				Usage:     "Publish a layer",
				ArgsUsage: "NAME",
				Action:    setEnabled(true),
			},
			{
				Name:      "disable",
				Usage:     "Stop publishing a layer",
				ArgsUsage: "NAME",
				Action:    setEnabled(false),
			},
		},
	}
}

func setEnabled(enabled bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errUsage
		}
		_, cat, err := openCatalog(c)
		if err != nil {
			return err
		}
		defer cat.Close()
		l, err := cat.Get(c.Args().First())
		if err != nil {
			return err
		}
		l.Enabled = enabled
		return cat.Update(l)
	}
}

func tileMatrixSetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tilematrixsets",
		Usage: "Describe the built-in tile matrix sets, or the one in --file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: FILE, Aliases: []string{"f"}, Usage: "Tile matrix set JSON file"},
		},
		Action: func(c *cli.Context) error {
			if c.String(FILE) != "" {
				tms, err := tms20.LoadJSONTileMatrixSet(c.String(FILE))
				if err != nil {
					return err
				}
				describeTileMatrixSet(&tms)
				return nil
			}
			ids, err := tms20.EmbeddedTileMatrixSetIDs()
			if err != nil {
				return err
			}
			for _, id := range ids {
				tms, err := tms20.LoadEmbeddedTileMatrixSet(id)
				if err != nil {
					return err
				}
				describeTileMatrixSet(&tms)
			}
			return nil
		},
	}
}

func describeTileMatrixSet(tms *tms20.TileMatrixSet) {
	fmt.Printf("%s (%s, %d tile matrices)\n", tms.ID, tms.CRSCode(), len(tms.TileMatrices))
	text := tms.Title
	if tms.Description != "" {
		text += ". " + tms.Description
	}
	if text != "" {
		for _, line := range strings.Split(wordwrap.String(text, textWidth-2), "\n") {
			fmt.Println("  " + line)
		}
	}
}
