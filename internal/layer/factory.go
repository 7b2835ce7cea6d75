package layer

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/proj"
	"github.com/joeblew999/plat-visor/internal/surface"
	"github.com/joeblew999/plat-visor/internal/wfs"
)

// LoadingFunc is told when a layer starts and stops loading.
type LoadingFunc func(key string, loading bool)

// Factory builds rendered layers from definitions.
type Factory struct {
	Loader  surface.Loader
	Builder *wfs.Builder
}

// NewFactory returns a factory loading through loader and building WFS
// requests with builder.
func NewFactory(loader surface.Loader, builder *wfs.Builder) *Factory {
	if builder == nil {
		builder = wfs.NewBuilder("")
	}
	return &Factory{Loader: loader, Builder: builder}
}

// Create builds the rendered layer for def. WFS layers reload per view
// extent; other formats load their URL once. Every loaded feature is
// stamped with the layer metadata and onLoading follows the load
// lifecycle. The layer is tagged with def.Key.
func (f *Factory) Create(def catalog.Layer, onLoading LoadingFunc) *surface.VectorLayer {
	opts := surface.SourceOptions{
		Loader:    f.Loader,
		Transform: f.transform(def),
	}
	if def.Format == catalog.FormatWFS {
		opts.Strategy = surface.StrategyBBox
		opts.URL = func(extent orb.Bound) string {
			return f.Builder.RequestURL(def, extent)
		}
	} else {
		opts.Strategy = surface.StrategyAll
		opts.URL = surface.StaticURL(def.URL)
	}

	src := surface.NewVectorSource(opts)
	md := NewMetadata(def)
	src.On(surface.FeatureAdded, func(e surface.Event) {
		Stamp(e.Feature, md)
	})
	if onLoading != nil {
		src.On(surface.LoadStart, func(surface.Event) { onLoading(def.Key, true) })
		src.On(surface.LoadEnd, func(surface.Event) { onLoading(def.Key, false) })
		src.On(surface.LoadError, func(surface.Event) { onLoading(def.Key, false) })
	}

	l := surface.NewVectorLayer(src, StyleFor(def.Color, def.Geometry))
	Tag(l, def.Key)
	return l
}

// DataCRS is the CRS loaded features arrive in: the declared CRS, else the
// map CRS for WFS (the request names it) and WGS84 for plain GeoJSON.
func (f *Factory) DataCRS(def catalog.Layer) string {
	switch {
	case def.CRS != "":
		return def.CRS
	case def.Format == catalog.FormatWFS:
		return f.Builder.MapCRS
	default:
		return proj.WGS84
	}
}

func (f *Factory) transform(def catalog.Layer) orb.Projection {
	from := f.DataCRS(def)
	if proj.Same(from, f.Builder.MapCRS) {
		return nil
	}
	tr, err := proj.Transformer(from, f.Builder.MapCRS)
	if err != nil {
		logger.L().Warn("layer_transform_skipped", "layer", def.Key, "crs", from, "err", err)
		return nil
	}
	return tr
}
