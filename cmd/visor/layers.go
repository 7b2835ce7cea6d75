package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/proj"
	"github.com/joeblew999/plat-visor/internal/wfs"
)

func loadCatalog(path string) (catalog.File, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// printLayers writes one line per category with its state, then its layers.
func printLayers(w io.Writer, path string) error {
	file, err := loadCatalog(path)
	if err != nil {
		return err
	}
	tree, err := file.Tree()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range tree.Categories() {
		fmt.Fprintf(tw, "%s\t[%s]\t%s\n", c.Key, catalog.ParentState(c), c.Title)
		for _, l := range c.Layers {
			mark := " "
			if l.Active {
				mark = "x"
			}
			fmt.Fprintf(tw, "  [%s] %s\t%s\t%s\n", mark, l.Key, l.Format, l.Title)
		}
	}
	return tw.Flush()
}

// requestURL builds the request of a layer for a bbox given as
// minX,minY,maxX,maxY with an optional trailing CRS (the map CRS otherwise).
func requestURL(path, mapCRS, key, bbox string) (string, error) {
	file, err := loadCatalog(path)
	if err != nil {
		return "", err
	}
	tree, err := file.Tree()
	if err != nil {
		return "", err
	}
	def, ok := tree.Layer(key)
	if !ok {
		return "", &catalog.ErrNotFound{Type: "layer", Key: key}
	}
	if def.Format != catalog.FormatWFS {
		return def.URL, nil
	}

	if mapCRS == "" {
		mapCRS = file.View.CRS
	}
	b := wfs.NewBuilder(mapCRS)

	extent, crs, ok := wfs.ParseBBox(bbox)
	if !ok {
		return "", errors.Errorf("invalid bbox %q", bbox)
	}
	if crs != "" {
		if extent, err = proj.TransformBound(extent, crs, b.MapCRS); err != nil {
			return "", err
		}
	}
	return b.RequestURL(def, extent), nil
}
