package surface

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrentLoads bounds in-flight source loads per refresh.
const DefaultMaxConcurrentLoads = 4

// Dispatcher runs fn on the goroutine that owns the map.
type Dispatcher func(fn func())

// Immediate runs fn in place.
func Immediate(fn func()) { fn() }

// Options configures a Map. The zero value gives a synchronous map: loads
// run inline and their events fire before the triggering call returns.
type Options struct {
	// Context bounds every load started by the map.
	Context context.Context
	// Dispatch posts load results back to the map's goroutine. When set, loads
	// run in background goroutines.
	Dispatch Dispatcher
	// MaxConcurrentLoads caps parallel loads for asynchronous maps.
	MaxConcurrentLoads int
}

// Map is an ordered stack of layers over a view extent. Index 0 is drawn
// first (the base layer); the last layer is on top.
type Map struct {
	ctx      context.Context
	dispatch Dispatcher
	limit    int

	layers  []Layer
	view    orb.Bound
	hasView bool
	cursor  string
}

// NewMap creates an empty map without a view.
func NewMap(opts Options) *Map {
	m := &Map{
		ctx:      opts.Context,
		dispatch: opts.Dispatch,
		limit:    opts.MaxConcurrentLoads,
	}
	if m.ctx == nil {
		m.ctx = context.Background()
	}
	if m.limit <= 0 {
		m.limit = DefaultMaxConcurrentLoads
	}
	return m
}

// Layers returns a snapshot of the layer stack, bottom first.
func (m *Map) Layers() []Layer {
	out := make([]Layer, len(m.layers))
	copy(out, m.layers)
	return out
}

// AddLayer puts l on top and starts any load its source needs.
func (m *Map) AddLayer(l Layer) {
	m.layers = append(m.layers, l)
	m.attach(l)
}

// InsertLayerAt inserts l at index i, clamped to the stack.
func (m *Map) InsertLayerAt(i int, l Layer) {
	if i < 0 {
		i = 0
	}
	if i >= len(m.layers) {
		m.AddLayer(l)
		return
	}
	m.layers = append(m.layers, nil)
	copy(m.layers[i+1:], m.layers[i:])
	m.layers[i] = l
	m.attach(l)
}

// SetLayerAt replaces the layer at index i and returns the old one.
func (m *Map) SetLayerAt(i int, l Layer) (Layer, bool) {
	if i < 0 || i >= len(m.layers) {
		return nil, false
	}
	old := m.layers[i]
	m.layers[i] = l
	detach(old)
	m.attach(l)
	return old, true
}

// RemoveLayer removes l. A removed vector layer's source is disposed, so
// loads still in flight for it are discarded when they complete.
func (m *Map) RemoveLayer(l Layer) bool {
	for i, cur := range m.layers {
		if cur == l {
			m.layers = append(m.layers[:i], m.layers[i+1:]...)
			detach(l)
			return true
		}
	}
	return false
}

// View returns the current extent in the map CRS.
func (m *Map) View() (orb.Bound, bool) {
	return m.view, m.hasView
}

// FitExtent moves the view and loads whatever the new extent needs.
func (m *Map) FitExtent(extent orb.Bound) {
	m.view = extent
	m.hasView = true

	var jobs []loadJob
	for _, l := range m.layers {
		if vl, ok := l.(*VectorLayer); ok {
			if job, ok := vl.source.prepare(m.view, m.hasView); ok {
				jobs = append(jobs, job)
			}
		}
	}
	m.run(jobs)
}

// SetCursor records the pointer cursor style.
func (m *Map) SetCursor(c string) { m.cursor = c }

// Cursor returns the pointer cursor style.
func (m *Map) Cursor() string { return m.cursor }

// Hit is one feature under a point.
type Hit struct {
	Layer   *VectorLayer
	Feature *Feature
}

// FeaturesAt returns the features within tolerance of pt, topmost layer
// first. Polygons also hit when pt lies inside them.
func (m *Map) FeaturesAt(pt orb.Point, tolerance float64) []Hit {
	var hits []Hit
	for i := len(m.layers) - 1; i >= 0; i-- {
		vl, ok := m.layers[i].(*VectorLayer)
		if !ok {
			continue
		}
		for _, f := range vl.source.features {
			if touches(f.Geometry, pt, tolerance) {
				hits = append(hits, Hit{Layer: vl, Feature: f})
			}
		}
	}
	return hits
}

func touches(g orb.Geometry, pt orb.Point, tolerance float64) bool {
	if g == nil || !g.Bound().Pad(tolerance).Contains(pt) {
		return false
	}
	switch g := g.(type) {
	case orb.Polygon:
		if planar.PolygonContains(g, pt) {
			return true
		}
	case orb.MultiPolygon:
		if planar.MultiPolygonContains(g, pt) {
			return true
		}
	}
	return planar.DistanceFrom(g, pt) <= tolerance
}

func (m *Map) attach(l Layer) {
	vl, ok := l.(*VectorLayer)
	if !ok {
		return
	}
	if job, ok := vl.source.prepare(m.view, m.hasView); ok {
		m.run([]loadJob{job})
	}
}

func detach(l Layer) {
	if vl, ok := l.(*VectorLayer); ok {
		vl.source.dispose()
	}
}

func (m *Map) run(jobs []loadJob) {
	if len(jobs) == 0 {
		return
	}

	if m.dispatch == nil {
		for _, job := range jobs {
			features, err := job.src.opts.Loader.Load(m.ctx, job.url)
			job.src.finish(job, features, err)
		}
		return
	}

	ctx, dispatch, limit := m.ctx, m.dispatch, m.limit
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for _, job := range jobs {
			loader := job.src.opts.Loader
			g.Go(func() error {
				features, err := loader.Load(gctx, job.url)
				dispatch(func() { job.src.finish(job, features, err) })
				// failures are reported as LoadError events, not to the group
				return nil
			})
		}
		_ = g.Wait()
	}()
}
