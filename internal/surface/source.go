package surface

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// EventType names a source lifecycle event.
type EventType string

const (
	LoadStart    EventType = "featuresloadstart"
	LoadEnd      EventType = "featuresloadend"
	LoadError    EventType = "featuresloaderror"
	FeatureAdded EventType = "addfeature"
)

// Event is delivered to source listeners. Feature is set for FeatureAdded,
// Err for LoadError.
type Event struct {
	Type    EventType
	Feature *Feature
	Err     error
}

// Listener observes source events.
type Listener func(Event)

// URLFunc returns the request URL for an extent in the map CRS.
type URLFunc func(extent orb.Bound) string

// StaticURL ignores the extent.
func StaticURL(u string) URLFunc {
	return func(orb.Bound) string { return u }
}

// Strategy decides when a source loads.
type Strategy int

const (
	// StrategyAll loads once, the first time the source is on a map.
	StrategyAll Strategy = iota
	// StrategyBBox loads every view extent not already covered by a previous load.
	StrategyBBox
)

// Loader fetches the features behind a URL.
type Loader interface {
	Load(ctx context.Context, url string) ([]*Feature, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, url string) ([]*Feature, error)

func (f LoaderFunc) Load(ctx context.Context, url string) ([]*Feature, error) {
	return f(ctx, url)
}

// SourceOptions configures a VectorSource.
type SourceOptions struct {
	URL      URLFunc
	Strategy Strategy
	Loader   Loader
	// Transform reprojects loaded geometries into the map CRS; nil keeps them.
	Transform orb.Projection
}

// VectorSource holds the features of one vector layer and emits load events.
type VectorSource struct {
	opts      SourceOptions
	features  []*Feature
	byID      map[string]*Feature
	listeners map[EventType][]Listener

	loaded     []orb.Bound
	pending    []orb.Bound
	loadingAll bool
	loadedAll  bool
	disposed   bool
}

// NewVectorSource creates an empty source.
func NewVectorSource(opts SourceOptions) *VectorSource {
	return &VectorSource{
		opts:      opts,
		byID:      make(map[string]*Feature),
		listeners: make(map[EventType][]Listener),
	}
}

// On registers a listener. Listeners run in registration order.
func (s *VectorSource) On(t EventType, fn Listener) {
	if s.disposed {
		return
	}
	s.listeners[t] = append(s.listeners[t], fn)
}

// Strategy returns the loading strategy.
func (s *VectorSource) Strategy() Strategy {
	return s.opts.Strategy
}

// Features returns the loaded features in load order.
func (s *VectorSource) Features() []*Feature {
	out := make([]*Feature, len(s.features))
	copy(out, s.features)
	return out
}

// Feature looks up a loaded feature by id.
func (s *VectorSource) Feature(id string) (*Feature, bool) {
	f, ok := s.byID[id]
	return f, ok
}

// Len returns the number of loaded features.
func (s *VectorSource) Len() int {
	return len(s.features)
}

// Disposed reports whether the source was removed from its map.
func (s *VectorSource) Disposed() bool {
	return s.disposed
}

// AddFeatures adds features not already present (by id), emitting
// FeatureAdded for each, and returns how many were added.
func (s *VectorSource) AddFeatures(features []*Feature) int {
	if s.disposed {
		return 0
	}
	n := 0
	for _, f := range features {
		if f == nil {
			continue
		}
		if _, dup := s.byID[f.ID]; dup {
			continue
		}
		if s.opts.Transform != nil && f.Geometry != nil {
			f.Geometry = project.Geometry(f.Geometry, s.opts.Transform)
		}
		s.features = append(s.features, f)
		s.byID[f.ID] = f
		n++
		s.emit(Event{Type: FeatureAdded, Feature: f})
	}
	return n
}

type loadJob struct {
	src    *VectorSource
	url    string
	extent orb.Bound
}

// prepare decides whether extent needs a load and emits LoadStart if so.
func (s *VectorSource) prepare(extent orb.Bound, hasView bool) (loadJob, bool) {
	if s.disposed || s.opts.Loader == nil || s.opts.URL == nil {
		return loadJob{}, false
	}

	switch s.opts.Strategy {
	case StrategyBBox:
		if !hasView || covered(s.loaded, extent) || covered(s.pending, extent) {
			return loadJob{}, false
		}
		s.pending = append(s.pending, extent)
	default:
		if s.loadedAll || s.loadingAll {
			return loadJob{}, false
		}
		s.loadingAll = true
	}

	job := loadJob{src: s, url: s.opts.URL(extent), extent: extent}
	s.emit(Event{Type: LoadStart})
	return job, true
}

// finish applies a load result. Results for a disposed source are dropped.
func (s *VectorSource) finish(job loadJob, features []*Feature, err error) {
	if s.disposed {
		return
	}

	if s.opts.Strategy == StrategyBBox {
		s.pending = removeBound(s.pending, job.extent)
	} else {
		s.loadingAll = false
	}

	if err != nil {
		s.emit(Event{Type: LoadError, Err: err})
		return
	}

	if s.opts.Strategy == StrategyBBox {
		s.loaded = append(s.loaded, job.extent)
	} else {
		s.loadedAll = true
	}
	s.AddFeatures(features)
	s.emit(Event{Type: LoadEnd})
}

func (s *VectorSource) dispose() {
	s.disposed = true
	s.features = nil
	s.byID = nil
	s.listeners = nil
	s.loaded = nil
	s.pending = nil
}

func (s *VectorSource) emit(e Event) {
	for _, fn := range s.listeners[e.Type] {
		fn(e)
	}
}

func covered(bounds []orb.Bound, extent orb.Bound) bool {
	for _, b := range bounds {
		if b.Contains(extent.Min) && b.Contains(extent.Max) {
			return true
		}
	}
	return false
}

func removeBound(bounds []orb.Bound, extent orb.Bound) []orb.Bound {
	for i, b := range bounds {
		if b.Equal(extent) {
			return append(bounds[:i], bounds[i+1:]...)
		}
	}
	return bounds
}
