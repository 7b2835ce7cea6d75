package panel

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/surface"
	"github.com/joeblew999/plat-visor/internal/templates"
	"github.com/joeblew999/plat-visor/internal/visor"
)

func testCatalog() catalog.File {
	return catalog.File{
		View: catalog.View{CRS: "EPSG:4326", Extent: [4]float64{-71, -12, -70, -11}, Base: "aerea"},
		BaseLayers: []catalog.BaseLayer{
			{Key: "aerea", Title: "Aérea", URL: "https://a.example.org/{z}/{x}/{y}.png"},
			{Key: "topografico", Title: "Topográfico", URL: "https://t.example.org/{z}/{x}/{y}.png"},
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
					Color:    "14,165,233",
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
				},
			},
		}},
	}
}

func load(_ context.Context, url string) ([]*surface.Feature, error) {
	if !strings.Contains(url, "lotes") {
		return nil, nil
	}
	return []*surface.Feature{{
		ID:         "l1",
		Geometry:   orb.Polygon{{{-70.6, -11.6}, {-70.4, -11.6}, {-70.4, -11.4}, {-70.6, -11.4}, {-70.6, -11.6}}},
		Properties: map[string]any{"NAME": "Lote 12", "OWNER": "J. Perez"},
	}}, nil
}

func newServer(t *testing.T) (*httptest.Server, *visor.Visor) {
	t.Helper()
	v, err := visor.New(visor.Config{Catalog: testCatalog(), Loader: surface.LoaderFunc(load)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		v.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	r, err := templates.New()
	require.NoError(t, err)

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("panel test", "0.0.0"))
	NewHandler(v, r).RegisterRoutes(api)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// wait for the initial load
	require.Eventually(t, func() bool {
		s, err := v.Status(context.Background())
		return err == nil && s.Features["lotes"] == 1
	}, 2*time.Second, 10*time.Millisecond)
	return srv, v
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) string {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestTree(t *testing.T) {
	srv, _ := newServer(t)

	out := call(t, srv, http.MethodGet, "/api/v1/visor/tree", "")
	assert.Contains(t, out, "selector "+TreeSelector)
	assert.Contains(t, out, "category-mixed")
	assert.Contains(t, out, "Concesiones")
	assert.Contains(t, out, "background: #0ea5e9")
	assert.Contains(t, out, "selector "+LoadingSelector)
}

func TestToggle(t *testing.T) {
	srv, v := newServer(t)

	out := call(t, srv, http.MethodPut, "/api/v1/visor/categories/concesiones?active=true", "")
	assert.Contains(t, out, "category-on")
	assert.Contains(t, out, "layers-changed")

	s, err := v.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lotes", "pozos"}, s.Rendered)

	out = call(t, srv, http.MethodPut, "/api/v1/visor/categories/concesiones/layers/lotes?active=false", "")
	assert.Contains(t, out, "category-mixed")

	out = call(t, srv, http.MethodPut, "/api/v1/visor/categories/nope?active=true", "")
	assert.Contains(t, out, "does not exist")
}

func TestSearch(t *testing.T) {
	srv, _ := newServer(t)

	out := call(t, srv, http.MethodPost, "/api/v1/visor/search", `{"q":"perez"}`)
	assert.Contains(t, out, "selector "+ResultsSelector)
	assert.Contains(t, out, "Lote 12")
	assert.Contains(t, out, `"results":1`)

	out = call(t, srv, http.MethodPost, "/api/v1/visor/search", `{"q":"xyzzy"}`)
	assert.Contains(t, out, "Sin resultados")

	out = call(t, srv, http.MethodPost, "/api/v1/visor/search", `{"q":"zz"}`)
	assert.Contains(t, out, "at least 3 characters")
	assert.NotContains(t, out, ResultsSelector)
}

func TestIdentifyAndFeature(t *testing.T) {
	srv, _ := newServer(t)

	out := call(t, srv, http.MethodPost, "/api/v1/visor/identify", `{"x":-70.5,"y":-11.5}`)
	assert.Contains(t, out, "selector "+DetailSelector)
	assert.Contains(t, out, "Lote 12")
	assert.Contains(t, out, "J. Perez")

	out = call(t, srv, http.MethodPost, "/api/v1/visor/identify", `{"x":0,"y":0}`)
	assert.Contains(t, out, "Sin elementos")

	out = call(t, srv, http.MethodGet, "/api/v1/visor/features/lotes/l1", "")
	assert.Contains(t, out, "feature-lotes-l1")

	out = call(t, srv, http.MethodGet, "/api/v1/visor/features/lotes/missing", "")
	assert.Contains(t, out, "does not exist")
}

func TestBaseLayers(t *testing.T) {
	srv, v := newServer(t)

	out := call(t, srv, http.MethodGet, "/api/v1/visor/base-layers", "")
	assert.Contains(t, out, `<option value="aerea" selected>`)
	assert.Contains(t, out, "Topográfico")

	out = call(t, srv, http.MethodPut, "/api/v1/visor/base-layer", `{"base":"topografico"}`)
	assert.Contains(t, out, "success")

	s, err := v.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "topografico", s.Base)
}

func TestEvents(t *testing.T) {
	srv, _ := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/visor/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var (
		mu  sync.Mutex
		buf strings.Builder
	)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			mu.Lock()
			buf.WriteString(sc.Text())
			buf.WriteByte('\n')
			mu.Unlock()
		}
	}()
	seen := func(s string) bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(buf.String(), s)
	}

	// the subscription starts once the stream is open; keep toggling until
	// an event gets through
	deadline := time.Now().Add(3 * time.Second)
	for active := true; !seen("resource-changed") && time.Now().Before(deadline); active = !active {
		call(t, srv, http.MethodPut, "/api/v1/visor/categories/concesiones/layers/pozos?active="+strconv.FormatBool(active), "")
		time.Sleep(20 * time.Millisecond)
	}
	assert.True(t, seen("resource-changed"))
	assert.True(t, seen("selector "+TreeSelector))
}

func TestSignalsPoint(t *testing.T) {
	x, y := -70.5, 0.0
	pt, ok := Signals{X: &x, Y: &y}.Point()
	require.True(t, ok)
	assert.Equal(t, orb.Point{-70.5, 0}, pt)

	_, ok = Signals{X: &x}.Point()
	assert.False(t, ok)
}
