package catalog

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoLayerTree(t *testing.T, a, b bool) Tree {
	t.Helper()
	tree, err := New([]Category{{
		Key:   "predios",
		Title: "Predios",
		Layers: []Layer{
			{Key: "lotes", Title: "Lotes", Format: "wfs", Geometry: "Polygon", Active: a},
			{Key: "vias", Title: "Vías", Format: "geojson", Geometry: "LineString", Active: b},
		},
	}, {
		Key:    "otros",
		Title:  "Otros",
		Layers: []Layer{{Key: "pozos", Geometry: "point"}},
	}})
	require.NoError(t, err)
	return tree
}

func TestParentState(t *testing.T) {
	cases := []struct {
		name string
		a, b bool
		want State
	}{
		{"all", true, true, StateOn},
		{"some", true, false, StateMixed},
		{"none", false, false, StateOff},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := twoLayerTree(t, tc.a, tc.b).Category("predios")
			require.True(t, ok)
			assert.Equal(t, tc.want, ParentState(c))
			assert.Equal(t, tc.want == StateOn, c.Active)
		})
	}
	assert.Equal(t, StateOff, ParentState(Category{}))
}

func TestNewNormalizes(t *testing.T) {
	tree := twoLayerTree(t, false, false)
	l, ok := tree.Layer("lotes")
	require.True(t, ok)
	assert.Equal(t, FormatWFS, l.Format)
	assert.Equal(t, GeometryPolygon, l.Geometry)

	l, _ = tree.Layer("vias")
	assert.Equal(t, GeometryLine, l.Geometry)

	l, _ = tree.Layer("pozos")
	assert.Equal(t, FormatGeoJSON, l.Format)
}

func TestNewRejectsDuplicateLayerKeys(t *testing.T) {
	_, err := New([]Category{
		{Key: "a", Layers: []Layer{{Key: "x"}}},
		{Key: "b", Layers: []Layer{{Key: "x"}}},
	})
	var invalid *ErrInvalid
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "x", invalid.Key)

	_, err = New([]Category{{Key: "a"}, {Key: "a"}})
	assert.Error(t, err)

	_, err = New([]Category{{Key: "a", Layers: []Layer{{Key: "x", Format: "wms"}}}})
	assert.Error(t, err)
}

func TestToggleCategoryCascades(t *testing.T) {
	tree := twoLayerTree(t, true, false)

	on, err := tree.ToggleCategory("predios", true)
	require.NoError(t, err)
	c, _ := on.Category("predios")
	assert.True(t, c.Active)
	for _, l := range c.Layers {
		assert.True(t, l.Active)
	}

	off, err := on.ToggleCategory("predios", false)
	require.NoError(t, err)
	c, _ = off.Category("predios")
	assert.Equal(t, StateOff, ParentState(c))
	assert.Empty(t, off.ActiveLayers())
}

func TestToggleIsImmutable(t *testing.T) {
	tree := twoLayerTree(t, false, false)
	next, err := tree.ToggleLayer("predios", "lotes", true)
	require.NoError(t, err)

	before, _ := tree.Layer("lotes")
	after, _ := next.Layer("lotes")
	assert.False(t, before.Active)
	assert.True(t, after.Active)

	// untouched categories share their layer storage
	a, _ := tree.Category("otros")
	b, _ := next.Category("otros")
	assert.Same(t, &a.Layers[0], &b.Layers[0])
}

func TestToggleLayerRoundTrip(t *testing.T) {
	tree := twoLayerTree(t, true, false)
	start, _ := tree.Category("predios")

	on, err := tree.ToggleLayer("predios", "vias", true)
	require.NoError(t, err)
	c, _ := on.Category("predios")
	assert.Equal(t, StateOn, ParentState(c))
	assert.True(t, c.Active)

	back, err := on.ToggleLayer("predios", "vias", false)
	require.NoError(t, err)
	c, _ = back.Category("predios")
	assert.Equal(t, ParentState(start), ParentState(c))
	assert.Equal(t, start.Active, c.Active)
}

func TestToggleNotFound(t *testing.T) {
	tree := twoLayerTree(t, false, false)

	_, err := tree.ToggleCategory("missing", true)
	var nf *ErrNotFound
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "category", nf.Type)

	same, err := tree.ToggleLayer("predios", "missing", true)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "layer", nf.Type)
	assert.Empty(t, same.ActiveLayers())
}

func TestActiveLayersOrder(t *testing.T) {
	tree := twoLayerTree(t, true, true)
	tree, err := tree.ToggleLayer("otros", "pozos", true)
	require.NoError(t, err)

	var keys []string
	for _, l := range tree.ActiveLayers() {
		keys = append(keys, l.Key)
	}
	assert.Equal(t, []string{"lotes", "vias", "pozos"}, keys)
}
