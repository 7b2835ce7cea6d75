package visor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/db"
	"github.com/joeblew999/plat-visor/internal/layer"
	"github.com/joeblew999/plat-visor/internal/search"
	"github.com/joeblew999/plat-visor/internal/surface"
)

func testCatalog() catalog.File {
	return catalog.File{
		View: catalog.View{CRS: "EPSG:4326", Extent: [4]float64{-71, -12, -70, -11}, Base: "aerea"},
		BaseLayers: []catalog.BaseLayer{
			{Key: "aerea", URL: "https://a.example.org/{z}/{x}/{y}.png"},
			{Key: "topografico", URL: "https://t.example.org/{z}/{x}/{y}.png"},
		},
		Categories: []catalog.Category{{
			Key:   "concesiones",
			Title: "Concesiones",
			Layers: []catalog.Layer{
				{
					Key:      "lotes",
					Title:    "Lotes",
					Format:   catalog.FormatWFS,
					URL:      "https://ide.example.org/ows?typeName=lotes",
					Geometry: catalog.GeometryPolygon,
					Columns:  catalog.Columns{Text: "NAME", Owner: "OWNER"},
					Search:   []string{"NAME", "OWNER"},
					Active:   true,
				},
				{
					Key:      "pozos",
					Title:    "Pozos",
					Format:   catalog.FormatGeoJSON,
					URL:      "https://data.example.org/pozos.geojson",
					Geometry: catalog.GeometryPoint,
					Columns:  catalog.Columns{Text: "NAME"},
					Search:   []string{"NAME"},
				},
			},
		}},
	}
}

type fakeLoader struct {
	mu   sync.Mutex
	urls []string
	fail bool
}

func (l *fakeLoader) Load(_ context.Context, url string) ([]*surface.Feature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, url)
	if l.fail {
		return nil, errors.New("service unavailable")
	}

	switch {
	case strings.Contains(url, "lotes"):
		return []*surface.Feature{{
			ID:         "l1",
			Geometry:   orb.Polygon{{{-70.6, -11.6}, {-70.4, -11.6}, {-70.4, -11.4}, {-70.6, -11.4}, {-70.6, -11.6}}},
			Properties: map[string]any{"NAME": "Lote 12", "OWNER": "J. Perez"},
		}}, nil
	case strings.Contains(url, "pozos"):
		return []*surface.Feature{{
			ID:         "p1",
			Geometry:   orb.Point{-70.2, -11.2},
			Properties: map[string]any{"NAME": "Pozo Perez"},
		}}, nil
	}
	return nil, nil
}

func (l *fakeLoader) requests() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.urls...)
}

func newInline(t *testing.T, loader surface.Loader) *Visor {
	t.Helper()
	v, err := New(Config{Catalog: testCatalog(), Loader: loader, Inline: true})
	require.NoError(t, err)
	return v
}

func TestNewRendersActiveLayers(t *testing.T) {
	loader := &fakeLoader{}
	v := newInline(t, loader)

	s, err := v.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lotes"}, s.Rendered)
	assert.Equal(t, map[string]int{"lotes": 1}, s.Features)
	assert.Equal(t, "aerea", s.Base)
	assert.Equal(t, "EPSG:4326", s.CRS)
	assert.Equal(t, []float64{-71, -12, -70, -11}, s.View)
	assert.False(t, s.Busy)

	reqs := loader.requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0], "bbox=-71%2C-12%2C-70%2C-11%2CEPSG%3A4326")
}

func TestToggleLayerDoesNotDisturbOthers(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{}
	v := newInline(t, loader)
	lotes := v.rendered("lotes")
	require.NotNil(t, lotes)

	res, err := v.ToggleLayer(ctx, "concesiones", "pozos", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"pozos"}, res.Added)
	assert.Same(t, lotes, v.rendered("lotes"))

	tree, err := v.Tree(ctx)
	require.NoError(t, err)
	c, _ := tree.Category("concesiones")
	assert.Equal(t, catalog.StateOn, catalog.ParentState(c))

	res, err = v.ToggleLayer(ctx, "concesiones", "pozos", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"pozos"}, res.Removed)
	assert.Same(t, lotes, v.rendered("lotes"))

	tree, _ = v.Tree(ctx)
	c, _ = tree.Category("concesiones")
	assert.Equal(t, catalog.StateMixed, catalog.ParentState(c))
	assert.Len(t, loader.requests(), 2)
}

func TestToggleCategory(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{})

	res, err := v.ToggleCategory(ctx, "concesiones", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"lotes"}, res.Removed)

	s, _ := v.Status(ctx)
	assert.Empty(t, s.Rendered)

	res, err = v.ToggleCategory(ctx, "concesiones", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"lotes", "pozos"}, res.Added)
}

func TestToggleUnknown(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{})

	_, err := v.ToggleLayer(ctx, "concesiones", "nope", true)
	var nf *catalog.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Key)

	_, err = v.ToggleCategory(ctx, "nope", true)
	assert.ErrorAs(t, err, &nf)
}

func TestSearchIdentifyAndFeature(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{})
	_, err := v.ToggleLayer(ctx, "concesiones", "pozos", true)
	require.NoError(t, err)

	results, err := v.Search(ctx, "perez")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "lotes", results[0].LayerKey)
	assert.Equal(t, "pozos", results[1].LayerKey)

	_, err = v.Search(ctx, "zz")
	assert.ErrorIs(t, err, search.ErrInvalidQuery)

	details, err := v.Identify(ctx, orb.Point{-70.5, -11.5}, 0)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "Lote 12", details[0].Text)
	assert.Equal(t, "J. Perez", details[0].Owner)

	d, err := v.Feature(ctx, "pozos", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Pozo Perez", d.Text)

	var nf *catalog.ErrNotFound
	_, err = v.Feature(ctx, "pozos", "missing")
	assert.ErrorAs(t, err, &nf)
	_, err = v.Feature(ctx, "ghost", "p1")
	assert.ErrorAs(t, err, &nf)
}

func TestHoverSetsCursor(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{})

	over, err := v.Hover(ctx, orb.Point{-70.5, -11.5})
	require.NoError(t, err)
	assert.True(t, over)
	s, _ := v.Status(ctx)
	assert.Equal(t, "pointer", s.Cursor)

	over, err = v.Hover(ctx, orb.Point{-70.9, -11.9})
	require.NoError(t, err)
	assert.False(t, over)
	s, _ = v.Status(ctx)
	assert.Equal(t, "", s.Cursor)
}

func TestSetViewReloadsBBoxLayers(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{}
	v := newInline(t, loader)

	require.NoError(t, v.SetView(ctx, orb.Bound{Min: orb.Point{-75, -15}, Max: orb.Point{-74, -14}}))
	assert.Len(t, loader.requests(), 2)

	require.NoError(t, v.ResetView(ctx))
	// the initial extent is already loaded
	assert.Len(t, loader.requests(), 2)

	s, _ := v.Status(ctx)
	assert.Equal(t, []float64{-71, -12, -70, -11}, s.View)
}

func TestSetBaseLayer(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{})

	require.NoError(t, v.SetBaseLayer(ctx, "topografico"))
	s, _ := v.Status(ctx)
	assert.Equal(t, "topografico", s.Base)

	layers := v.mapv.Layers()
	tile, ok := layers[0].(*surface.TileLayer)
	require.True(t, ok)
	assert.Equal(t, "https://t.example.org/{z}/{x}/{y}.png", tile.URL())
	assert.Len(t, layers, 2)

	var nf *catalog.ErrNotFound
	assert.ErrorAs(t, v.SetBaseLayer(ctx, "nope"), &nf)
}

func TestBaseTiles(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{})

	tiles, err := v.BaseTiles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.org/0/0/0.png"}, tiles)

	tiles, err = v.BaseTiles(ctx, 8)
	require.NoError(t, err)
	assert.NotEmpty(t, tiles)
	for _, u := range tiles {
		assert.True(t, strings.HasPrefix(u, "https://a.example.org/8/"), u)
	}
}

func TestLoadErrorClearsBusy(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{fail: true})

	s, err := v.Status(ctx)
	require.NoError(t, err)
	assert.False(t, s.Busy)
	assert.Equal(t, []string{"lotes"}, s.Rendered)
	assert.Equal(t, 0, s.Features["lotes"])
}

func TestRequestURL(t *testing.T) {
	ctx := context.Background()
	v := newInline(t, &fakeLoader{})
	extent := orb.Bound{Min: orb.Point{-70.5, -11.8}, Max: orb.Point{-70.4, -11.6}}

	u, err := v.RequestURL(ctx, "lotes", extent)
	require.NoError(t, err)
	assert.Contains(t, u, "srsname=EPSG%3A4326")

	u, err = v.RequestURL(ctx, "pozos", extent)
	require.NoError(t, err)
	assert.Equal(t, "https://data.example.org/pozos.geojson", u)

	_, err = v.RequestURL(ctx, "nope", extent)
	var nf *catalog.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestFeatureTableMirrorsLayers(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open()
	require.NoError(t, err)
	defer conn.Close()
	table, err := db.NewFeatureTable(ctx, conn)
	require.NoError(t, err)

	v, err := New(Config{Catalog: testCatalog(), Loader: &fakeLoader{}, Table: table, Inline: true})
	require.NoError(t, err)

	counts, err := table.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"lotes": 1}, counts)

	_, err = v.ToggleLayer(ctx, "concesiones", "lotes", false)
	require.NoError(t, err)
	counts, err = table.Counts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestDuplicateLayerKeepsTableRows(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open()
	require.NoError(t, err)
	defer conn.Close()
	table, err := db.NewFeatureTable(ctx, conn)
	require.NoError(t, err)

	v, err := New(Config{Catalog: testCatalog(), Loader: &fakeLoader{}, Table: table, Inline: true})
	require.NoError(t, err)

	dup := surface.NewVectorLayer(surface.NewVectorSource(surface.SourceOptions{}), surface.Style{})
	layer.Tag(dup, "lotes")
	v.mapv.AddLayer(dup)

	res, err := v.ToggleLayer(ctx, "concesiones", "pozos", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"pozos"}, res.Added)
	assert.Empty(t, res.Removed)
	assert.Equal(t, []string{"lotes"}, res.Duplicates)

	counts, err := table.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"lotes": 1, "pozos": 1}, counts)
	for _, l := range v.mapv.Layers() {
		assert.NotSame(t, dup, l)
	}
}

func TestRunAsync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	v, err := New(Config{Catalog: testCatalog(), Loader: &fakeLoader{}})
	require.NoError(t, err)

	events := v.Bus().Subscribe()
	defer v.Bus().Unsubscribe(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(ctx)
	}()

	_, err = v.ToggleLayer(ctx, "concesiones", "pozos", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := v.Status(ctx)
		return err == nil && !s.Busy && s.Features["lotes"] == 1 && s.Features["pozos"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	_, err = v.Status(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestCloseCancelsLoadsWithoutRun(t *testing.T) {
	cancelled := make(chan error, 1)
	loader := surface.LoaderFunc(func(ctx context.Context, _ string) ([]*surface.Feature, error) {
		<-ctx.Done()
		cancelled <- ctx.Err()
		return nil, ctx.Err()
	})
	v, err := New(Config{Catalog: testCatalog(), Loader: loader})
	require.NoError(t, err)

	v.Close()
	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("load was not cancelled")
	}

	_, err = v.Status(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLoading(t *testing.T) {
	l := NewLoading()
	assert.False(t, l.Busy())

	l.Set("a", true)
	l.Set("a", true)
	l.Set("b", true)
	assert.Equal(t, []string{"a", "b"}, l.Keys())
	assert.Equal(t, 3, l.Total())

	l.Set("a", false)
	assert.True(t, l.Busy())
	l.Forget("a")
	l.Set("b", false)
	assert.False(t, l.Busy())

	// an unmatched end never goes negative
	l.Set("c", false)
	assert.Equal(t, 0, l.Total())
}

func TestBus(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	b.Publish(Event{Resource: "layers", Action: "added", ID: "lotes"})
	assert.Equal(t, Event{Resource: "layers", Action: "added", ID: "lotes"}, <-ch)

	b.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	b.Publish(Event{Resource: "layers"})
}
