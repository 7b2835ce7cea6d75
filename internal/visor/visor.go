// Package visor runs the map viewer: it owns the layer tree, the headless
// map, the loading tracker and the feature table, and serializes every
// operation on them through one event loop.
package visor

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/db"
	"github.com/joeblew999/plat-visor/internal/detail"
	"github.com/joeblew999/plat-visor/internal/layer"
	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/metrics"
	"github.com/joeblew999/plat-visor/internal/proj"
	"github.com/joeblew999/plat-visor/internal/reconcile"
	"github.com/joeblew999/plat-visor/internal/search"
	"github.com/joeblew999/plat-visor/internal/surface"
	"github.com/joeblew999/plat-visor/internal/wfs"
)

const (
	// HitPixels is the click tolerance around points and lines.
	HitPixels = 5
	// ViewportPixels is the nominal viewport width used to turn HitPixels
	// into map units.
	ViewportPixels = 1024

	queueSize = 64
)

// ErrStopped is returned by operations issued after Run returned or the
// visor was closed.
var ErrStopped = errors.New("visor stopped")

// Config configures a Visor.
type Config struct {
	Catalog catalog.File
	// MapCRS overrides the catalog view CRS.
	MapCRS string
	Loader surface.Loader
	// Table mirrors loaded features when set.
	Table              *db.FeatureTable
	Extractor          detail.Extractor
	MaxConcurrentLoads int
	// Inline runs operations on the caller's goroutine and loads
	// synchronously. The caller must not use the Visor concurrently.
	Inline bool
}

// Visor is the viewer state machine. All state is owned by the goroutine
// running Run; exported methods post closures to it and wait.
type Visor struct {
	file      catalog.File
	mapCRS    string
	builder   *wfs.Builder
	factory   *layer.Factory
	extractor detail.Extractor
	table     *db.FeatureTable
	inline    bool

	tree    catalog.Tree
	mapv    *surface.Map
	loading *Loading
	base    string

	bus     *Bus
	queue   chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New builds the visor, places the base layer, fits the initial view and
// renders the layers that start active.
func New(cfg Config) (*Visor, error) {
	tree, err := cfg.Catalog.Tree()
	if err != nil {
		return nil, err
	}

	mapCRS := cfg.MapCRS
	if mapCRS == "" {
		mapCRS = cfg.Catalog.View.CRS
	}
	builder := wfs.NewBuilder(mapCRS)

	ctx, cancel := context.WithCancel(context.Background())
	v := &Visor{
		file:      cfg.Catalog,
		mapCRS:    builder.MapCRS,
		builder:   builder,
		factory:   layer.NewFactory(cfg.Loader, builder),
		extractor: cfg.Extractor,
		table:     cfg.Table,
		inline:    cfg.Inline,
		tree:      tree,
		loading:   NewLoading(),
		bus:       NewBus(),
		queue:     make(chan func(), queueSize),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}

	opts := surface.Options{Context: ctx, MaxConcurrentLoads: cfg.MaxConcurrentLoads}
	if !cfg.Inline {
		opts.Dispatch = v.post
	}
	v.mapv = surface.NewMap(opts)

	if key := cfg.Catalog.View.Base; key != "" {
		if err := v.setBase(key); err != nil {
			cancel()
			return nil, err
		}
	}
	v.mapv.FitExtent(v.initialView())
	v.reconcile()
	return v, nil
}

// Run executes posted operations until ctx is done. Pending loads are
// cancelled when it returns.
func (v *Visor) Run(ctx context.Context) error {
	defer close(v.stopped)
	defer v.cancel()

	logger.L().Info("visor_started", "crs", v.mapCRS, "layers", len(v.tree.ActiveLayers()))
	for {
		select {
		case <-ctx.Done():
			logger.L().Info("visor_stopped")
			return nil
		case fn := <-v.queue:
			fn()
		}
	}
}

// Bus returns the event bus.
func (v *Visor) Bus() *Bus { return v.bus }

// MapCRS returns the map working CRS.
func (v *Visor) MapCRS() string { return v.mapCRS }

// BaseLayers returns the configured base layers.
func (v *Visor) BaseLayers() []catalog.BaseLayer {
	out := make([]catalog.BaseLayer, len(v.file.BaseLayers))
	copy(out, v.file.BaseLayers)
	return out
}

// post queues fn on the loop. Used as the map dispatcher.
func (v *Visor) post(fn func()) {
	select {
	case v.queue <- fn:
	case <-v.stopped:
	case <-v.ctx.Done():
	}
}

// Close cancels pending loads and rejects further operations. It is safe
// to call whether or not Run was started.
func (v *Visor) Close() {
	v.cancel()
}

// do runs fn on the loop and waits for it.
func (v *Visor) do(ctx context.Context, op string, fn func()) error {
	start := time.Now()
	defer func() {
		metrics.OperationDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if v.inline {
		fn()
		return nil
	}

	select {
	case <-v.stopped:
		return ErrStopped
	case <-v.ctx.Done():
		return ErrStopped
	default:
	}

	done := make(chan struct{})
	select {
	case v.queue <- func() { defer close(done); fn() }:
	case <-v.stopped:
		return ErrStopped
	case <-v.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-v.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tree returns the current layer tree snapshot.
func (v *Visor) Tree(ctx context.Context) (catalog.Tree, error) {
	var t catalog.Tree
	err := v.do(ctx, "tree", func() { t = v.tree })
	return t, err
}

// Layer resolves a layer definition in the current tree.
func (v *Visor) Layer(ctx context.Context, key string) (catalog.Layer, error) {
	var (
		def catalog.Layer
		ok  bool
	)
	if err := v.do(ctx, "layer", func() { def, ok = v.tree.Layer(key) }); err != nil {
		return catalog.Layer{}, err
	}
	if !ok {
		return catalog.Layer{}, &catalog.ErrNotFound{Type: "layer", Key: key}
	}
	return def, nil
}

// ToggleCategory switches a whole category and reconciles the map.
func (v *Visor) ToggleCategory(ctx context.Context, key string, active bool) (reconcile.Result, error) {
	var (
		res   reconcile.Result
		opErr error
	)
	err := v.do(ctx, "toggle_category", func() {
		t, err := v.tree.ToggleCategory(key, active)
		if err != nil {
			opErr = err
			return
		}
		v.tree = t
		logger.L().Info("category_toggled", "category", key, "active", active)
		v.bus.Publish(Event{Resource: "categories", Action: "toggled", ID: key})
		res = v.reconcile()
	})
	if err != nil {
		return res, err
	}
	return res, opErr
}

// ToggleLayer switches one layer and reconciles the map.
func (v *Visor) ToggleLayer(ctx context.Context, categoryKey, layerKey string, active bool) (reconcile.Result, error) {
	var (
		res   reconcile.Result
		opErr error
	)
	err := v.do(ctx, "toggle_layer", func() {
		t, err := v.tree.ToggleLayer(categoryKey, layerKey, active)
		if err != nil {
			opErr = err
			return
		}
		v.tree = t
		logger.L().Info("layer_toggled", "category", categoryKey, "layer", layerKey, "active", active)
		v.bus.Publish(Event{Resource: "categories", Action: "toggled", ID: categoryKey})
		res = v.reconcile()
	})
	if err != nil {
		return res, err
	}
	return res, opErr
}

// SetView moves the viewport; bbox layers load the new extent.
func (v *Visor) SetView(ctx context.Context, extent orb.Bound) error {
	return v.do(ctx, "set_view", func() {
		v.mapv.FitExtent(extent)
		v.bus.Publish(Event{Resource: "view", Action: "moved"})
	})
}

// ResetView returns to the configured initial view.
func (v *Visor) ResetView(ctx context.Context) error {
	return v.do(ctx, "reset_view", func() {
		v.mapv.FitExtent(v.initialView())
		v.bus.Publish(Event{Resource: "view", Action: "moved"})
	})
}

// SetBaseLayer swaps the base raster layer.
func (v *Visor) SetBaseLayer(ctx context.Context, key string) error {
	var opErr error
	if err := v.do(ctx, "set_base", func() { opErr = v.setBase(key) }); err != nil {
		return err
	}
	return opErr
}

// BaseTiles lists the base layer tile URLs covering the current view at
// zoom z. It is empty while there is no base layer or no view.
func (v *Visor) BaseTiles(ctx context.Context, z maptile.Zoom) ([]string, error) {
	var (
		tiles []string
		opErr error
	)
	err := v.do(ctx, "base_tiles", func() {
		tile, ok := firstLayer(v.mapv.Layers()).(*surface.TileLayer)
		view, hasView := v.mapv.View()
		if !ok || !hasView {
			return
		}
		ll, err := proj.TransformBound(view, v.mapCRS, proj.WGS84)
		if err != nil {
			opErr = err
			return
		}
		tiles = tile.Tiles(ll, z)
	})
	if err != nil {
		return nil, err
	}
	return tiles, opErr
}

// Search matches text against the loaded features of every rendered layer.
func (v *Visor) Search(ctx context.Context, text string) ([]search.Result, error) {
	var (
		results []search.Result
		opErr   error
	)
	err := v.do(ctx, "search", func() {
		results, opErr = search.Search(text, v.mapv.Layers(), v.tree)
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	metrics.SearchTotal.Inc()
	metrics.SearchResults.Observe(float64(len(results)))
	logger.L().Debug("search", "query", text, "results", len(results))
	return results, nil
}

// Identify returns the details of the features under pt, topmost first.
// A tolerance of zero or less uses HitPixels at the current view scale.
func (v *Visor) Identify(ctx context.Context, pt orb.Point, tolerance float64) ([]detail.Detail, error) {
	details := []detail.Detail{}
	err := v.do(ctx, "identify", func() {
		if tolerance <= 0 {
			tolerance = v.hitTolerance()
		}
		for _, hit := range v.mapv.FeaturesAt(pt, tolerance) {
			d, err := v.extractor.Extract(hit.Feature)
			if errors.Is(err, detail.ErrUntaggedFeature) {
				continue
			}
			details = append(details, d)
		}
	})
	return details, err
}

// Hover sets the pointer cursor when a feature is under pt and reports it.
func (v *Visor) Hover(ctx context.Context, pt orb.Point) (bool, error) {
	var over bool
	err := v.do(ctx, "hover", func() {
		over = len(v.mapv.FeaturesAt(pt, v.hitTolerance())) > 0
		if over {
			v.mapv.SetCursor("pointer")
		} else {
			v.mapv.SetCursor("")
		}
	})
	return over, err
}

// Feature returns the details of one loaded feature.
func (v *Visor) Feature(ctx context.Context, layerKey, id string) (detail.Detail, error) {
	var (
		d     detail.Detail
		opErr error
	)
	err := v.do(ctx, "feature", func() {
		vl := v.rendered(layerKey)
		if vl == nil {
			opErr = &catalog.ErrNotFound{Type: "rendered layer", Key: layerKey}
			return
		}
		f, ok := vl.Source().Feature(id)
		if !ok {
			opErr = &catalog.ErrNotFound{Type: "feature", Key: layerKey + "/" + id}
			return
		}
		d, opErr = v.extractor.Extract(f)
	})
	if err != nil {
		return d, err
	}
	return d, opErr
}

// RequestURL previews the request a layer would issue for extent. Layers
// that are not WFS return their static URL.
func (v *Visor) RequestURL(ctx context.Context, key string, extent orb.Bound) (string, error) {
	def, err := v.Layer(ctx, key)
	if err != nil {
		return "", err
	}
	if def.Format != catalog.FormatWFS {
		return def.URL, nil
	}
	return v.builder.RequestURL(def, extent), nil
}

// Status is a snapshot of the map state.
type Status struct {
	Busy     bool           `json:"busy" doc:"True while any layer is loading"`
	Loading  []string       `json:"loading" doc:"Layer keys with loads in flight"`
	Rendered []string       `json:"rendered" doc:"Managed layer keys on the map, bottom first"`
	Features map[string]int `json:"features" doc:"Loaded feature count per rendered layer"`
	CRS      string         `json:"crs" doc:"Map working CRS"`
	View     []float64      `json:"view,omitempty" doc:"Current extent minX,minY,maxX,maxY"`
	Base     string         `json:"base,omitempty" doc:"Current base layer key"`
	Cursor   string         `json:"cursor,omitempty" doc:"Pointer cursor"`
}

// Status returns the current map state.
func (v *Visor) Status(ctx context.Context) (Status, error) {
	var s Status
	err := v.do(ctx, "status", func() {
		s = Status{
			Busy:     v.loading.Busy(),
			Loading:  v.loading.Keys(),
			Rendered: []string{},
			Features: make(map[string]int),
			CRS:      v.mapCRS,
			Base:     v.base,
			Cursor:   v.mapv.Cursor(),
		}
		for _, l := range v.mapv.Layers() {
			vl, ok := l.(*surface.VectorLayer)
			if !ok {
				continue
			}
			if key, ok := layer.KeyOf(vl); ok {
				s.Rendered = append(s.Rendered, key)
				s.Features[key] = vl.Source().Len()
			}
		}
		if b, ok := v.mapv.View(); ok {
			s.View = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
		}
	})
	return s, err
}

func (v *Visor) reconcile() reconcile.Result {
	res := reconcile.Reconcile(v.mapv, v.tree.ActiveLayers(), v.build)

	for _, key := range res.Removed {
		v.loading.Forget(key)
		if v.table != nil {
			if _, err := v.table.DeleteLayer(v.ctx, key); err != nil {
				logger.L().Warn("feature_table_delete_failed", "layer", key, "err", err)
			}
		}
		metrics.LayersRemovedTotal.WithLabelValues(key).Inc()
		v.bus.Publish(Event{Resource: "layers", Action: "removed", ID: key})
	}
	for _, key := range res.Added {
		metrics.LayersAddedTotal.WithLabelValues(key).Inc()
		v.bus.Publish(Event{Resource: "layers", Action: "added", ID: key})
	}

	if res.Changed() {
		metrics.ReconcileTotal.Inc()
		logger.L().Info("reconcile_applied", "added", res.Added, "removed", res.Removed, "duplicates", res.Duplicates)
	}
	metrics.RenderedLayers.Set(float64(len(reconcile.Keys(v.mapv))))
	metrics.LoadsInFlight.Set(float64(v.loading.Total()))
	return res
}

func (v *Visor) build(def catalog.Layer) surface.Layer {
	l := v.factory.Create(def, v.onLoading)
	key := def.Key
	src := l.Source()

	src.On(surface.FeatureAdded, func(e surface.Event) {
		metrics.FeaturesLoadedTotal.WithLabelValues(key).Inc()
		if v.table == nil {
			return
		}
		if err := v.table.Insert(v.ctx, key, e.Feature); err != nil {
			logger.L().Warn("feature_table_insert_failed", "layer", key, "feature", e.Feature.ID, "err", err)
		}
	})
	src.On(surface.LoadEnd, func(surface.Event) {
		logger.L().Debug("layer_loaded", "layer", key, "features", src.Len())
	})
	src.On(surface.LoadError, func(e surface.Event) {
		metrics.LoadErrorsTotal.WithLabelValues(key).Inc()
		logger.L().Warn("layer_load_error", "layer", key, "err", e.Err)
		v.bus.Publish(Event{Resource: "loading", Action: "failed", ID: key})
	})
	return l
}

func (v *Visor) onLoading(key string, loading bool) {
	v.loading.Set(key, loading)
	metrics.LoadsInFlight.Set(float64(v.loading.Total()))

	action := "finished"
	if loading {
		action = "started"
	}
	v.bus.Publish(Event{Resource: "loading", Action: action, ID: key})
}

func (v *Visor) rendered(key string) *surface.VectorLayer {
	for _, l := range v.mapv.Layers() {
		vl, ok := l.(*surface.VectorLayer)
		if !ok {
			continue
		}
		if k, ok := layer.KeyOf(vl); ok && k == key {
			return vl
		}
	}
	return nil
}

func (v *Visor) setBase(key string) error {
	b, ok := v.file.BaseLayer(key)
	if !ok {
		return &catalog.ErrNotFound{Type: "base layer", Key: key}
	}
	tile := surface.NewTileLayer(b.URL)

	layers := v.mapv.Layers()
	if _, isTile := firstLayer(layers).(*surface.TileLayer); isTile {
		v.mapv.SetLayerAt(0, tile)
	} else {
		v.mapv.InsertLayerAt(0, tile)
	}
	v.base = key
	v.bus.Publish(Event{Resource: "base", Action: "changed", ID: key})
	return nil
}

func firstLayer(layers []surface.Layer) surface.Layer {
	if len(layers) == 0 {
		return nil
	}
	return layers[0]
}

// initialView is the configured extent, moved into the map CRS when the
// map CRS was overridden.
func (v *Visor) initialView() orb.Bound {
	e := v.file.View.Extent
	b := orb.Bound{Min: orb.Point{e[0], e[1]}, Max: orb.Point{e[2], e[3]}}

	from := v.file.View.CRS
	if from == "" {
		from = proj.WGS84
	}
	out, err := proj.TransformBound(b, from, v.mapCRS)
	if err != nil {
		logger.L().Warn("view_transform_skipped", "from", from, "to", v.mapCRS, "err", err)
		return b
	}
	return out
}

func (v *Visor) hitTolerance() float64 {
	b, ok := v.mapv.View()
	if !ok {
		return 0
	}
	return (b.Max[0] - b.Min[0]) / ViewportPixels * HitPixels
}
