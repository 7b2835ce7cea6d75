package catalog

// Tree is an immutable snapshot of the layer categories.
// Every mutation returns a new Tree; categories that did not change share
// their layer slices with the previous snapshot.
type Tree struct {
	categories []Category
}

// New validates the categories and returns a tree with category flags
// normalized to their children.
func New(categories []Category) (Tree, error) {
	seenCat := make(map[string]bool, len(categories))
	seenLayer := make(map[string]bool)

	out := make([]Category, len(categories))
	for i, c := range categories {
		if c.Key == "" {
			return Tree{}, &ErrInvalid{Reason: "category without key"}
		}
		if seenCat[c.Key] {
			return Tree{}, &ErrInvalid{Key: c.Key, Reason: "duplicate category key"}
		}
		seenCat[c.Key] = true

		layers := make([]Layer, len(c.Layers))
		for j, l := range c.Layers {
			if l.Key == "" {
				return Tree{}, &ErrInvalid{Key: c.Key, Reason: "layer without key"}
			}
			if seenLayer[l.Key] {
				return Tree{}, &ErrInvalid{Key: l.Key, Reason: "duplicate layer key"}
			}
			seenLayer[l.Key] = true

			format, ok := ParseFormat(string(l.Format))
			if !ok {
				return Tree{}, &ErrInvalid{Key: l.Key, Reason: "unknown format " + string(l.Format)}
			}
			geom, ok := ParseGeometryKind(string(l.Geometry))
			if !ok {
				return Tree{}, &ErrInvalid{Key: l.Key, Reason: "unknown geometry " + string(l.Geometry)}
			}
			l.Format = format
			l.Geometry = geom
			layers[j] = l
		}
		c.Layers = layers
		c.Active = allActive(layers)
		out[i] = c
	}
	return Tree{categories: out}, nil
}

// Categories returns the categories in display order.
func (t Tree) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Category returns one category by key.
func (t Tree) Category(key string) (Category, bool) {
	for _, c := range t.categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}

// Layer resolves a layer definition by its key.
func (t Tree) Layer(key string) (Layer, bool) {
	for _, c := range t.categories {
		for _, l := range c.Layers {
			if l.Key == key {
				return l, true
			}
		}
	}
	return Layer{}, false
}

// ActiveLayers returns the active layer definitions in tree order.
func (t Tree) ActiveLayers() []Layer {
	var out []Layer
	for _, c := range t.categories {
		for _, l := range c.Layers {
			if l.Active {
				out = append(out, l)
			}
		}
	}
	return out
}

// ToggleCategory sets active on the category and every layer in it.
func (t Tree) ToggleCategory(categoryKey string, active bool) (Tree, error) {
	idx := t.indexOf(categoryKey)
	if idx < 0 {
		return t, &ErrNotFound{Type: "category", Key: categoryKey}
	}

	c := t.categories[idx]
	layers := make([]Layer, len(c.Layers))
	for i, l := range c.Layers {
		l.Active = active
		layers[i] = l
	}
	c.Layers = layers
	c.Active = active
	return t.replace(idx, c), nil
}

// ToggleLayer sets active on exactly one layer and recomputes the parent flag.
func (t Tree) ToggleLayer(categoryKey, layerKey string, active bool) (Tree, error) {
	idx := t.indexOf(categoryKey)
	if idx < 0 {
		return t, &ErrNotFound{Type: "category", Key: categoryKey}
	}

	c := t.categories[idx]
	found := false
	layers := make([]Layer, len(c.Layers))
	for i, l := range c.Layers {
		if l.Key == layerKey {
			l.Active = active
			found = true
		}
		layers[i] = l
	}
	if !found {
		return t, &ErrNotFound{Type: "layer", Key: layerKey}
	}
	c.Layers = layers
	c.Active = allActive(layers)
	return t.replace(idx, c), nil
}

// ParentState reports on when every layer is active, off when none is,
// and mixed otherwise. An empty category is off.
func ParentState(c Category) State {
	n := 0
	for _, l := range c.Layers {
		if l.Active {
			n++
		}
	}
	switch {
	case n == 0:
		return StateOff
	case n == len(c.Layers):
		return StateOn
	default:
		return StateMixed
	}
}

func (t Tree) indexOf(key string) int {
	for i, c := range t.categories {
		if c.Key == key {
			return i
		}
	}
	return -1
}

func (t Tree) replace(idx int, c Category) Tree {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	out[idx] = c
	return Tree{categories: out}
}

func allActive(layers []Layer) bool {
	if len(layers) == 0 {
		return false
	}
	for _, l := range layers {
		if !l.Active {
			return false
		}
	}
	return true
}
