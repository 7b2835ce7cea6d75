// Package reconcile keeps the managed layers of a map in step with the set
// of active layer definitions.
package reconcile

import (
	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/layer"
	"github.com/joeblew999/plat-visor/internal/surface"
)

// Surface is the part of the map the reconciler drives.
type Surface interface {
	Layers() []surface.Layer
	AddLayer(surface.Layer)
	RemoveLayer(surface.Layer) bool
}

// BuildFunc creates the rendered layer for a definition.
type BuildFunc func(def catalog.Layer) surface.Layer

// Result lists the keys added and removed, in the order applied. A key in
// Removed is no longer on the map; Duplicates are extra layers of a key
// that stays rendered.
type Result struct {
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// Changed reports whether the map was modified.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Duplicates) > 0
}

// Reconcile removes every tagged layer whose key is not desired, then adds a
// built layer for every desired key not on the map. Layers present in both
// sets are left as they are, untagged layers are never touched, and a
// second call with the same desired set changes nothing.
func Reconcile(s Surface, desired []catalog.Layer, build BuildFunc) Result {
	want := make(map[string]bool, len(desired))
	for _, def := range desired {
		want[def.Key] = true
	}

	var res Result
	current := make(map[string]bool)
	removed := make(map[string]bool)
	for _, l := range s.Layers() {
		key, ok := layer.KeyOf(l)
		if !ok {
			continue
		}
		switch {
		case current[key]:
			// a key seen twice keeps only its first layer
			if s.RemoveLayer(l) {
				res.Duplicates = append(res.Duplicates, key)
			}
		case !want[key]:
			if s.RemoveLayer(l) && !removed[key] {
				removed[key] = true
				res.Removed = append(res.Removed, key)
			}
		default:
			current[key] = true
		}
	}

	for _, def := range desired {
		if current[def.Key] {
			continue
		}
		l := build(def)
		if l == nil {
			continue
		}
		s.AddLayer(l)
		current[def.Key] = true
		res.Added = append(res.Added, def.Key)
	}
	return res
}

// Keys returns the managed keys on the map, bottom first.
func Keys(s Surface) []string {
	var keys []string
	for _, l := range s.Layers() {
		if key, ok := layer.KeyOf(l); ok {
			keys = append(keys, key)
		}
	}
	return keys
}
