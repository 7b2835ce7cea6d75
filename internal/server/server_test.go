package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-visor/internal/surface"
	"github.com/joeblew999/plat-visor/internal/visor"
)

const testCatalog = `
view:
  crs: EPSG:4326
  extent: [-71, -12, -70, -11]
  base: aerea
base_layers:
  - key: aerea
    title: Aérea
    url: https://a.example.org/{z}/{x}/{y}.png
categories:
  - key: concesiones
    title: Concesiones
    layers:
      - key: lotes
        title: Lotes
        format: wfs
        url: https://ide.example.org/ows?typeName=lotes
        geometry: polygon
        column_text: NAME
        columns_search: [NAME]
        active: true
`

func newTestServer(t *testing.T, table bool) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	s, err := New(Config{
		Host:         "localhost",
		Port:         "8087",
		CatalogPath:  path,
		FeatureTable: table,
		Loader: surface.LoaderFunc(func(context.Context, string) ([]*surface.Feature, error) {
			return nil, nil
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.Close()
	})
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, false)

	rec := get(s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plat-visor")
	assert.Contains(t, rec.Header().Values("Link"), `</openapi.json>; rel="service-desc"`)

	assert.Equal(t, http.StatusNotFound, get(s, "/nope").Code)

	rec = get(s, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Rendered []string `json:"rendered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, []string{"lotes"}, status.Rendered)

	rec = get(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "visor_rendered_layers")

	assert.Equal(t, http.StatusServiceUnavailable, get(s, "/api/v1/tables").Code)
}

func TestOpenAPI(t *testing.T) {
	s := newTestServer(t, false)

	oapi := s.OpenAPI()
	for _, p := range []string{"/health", "/api/v1/categories/{key}", "/api/v1/search", "/api/v1/visor/events"} {
		assert.Contains(t, oapi.Paths, p)
	}

	// panel routes stay out of the link graph
	for _, link := range get(s, "/health").Header().Values("Link") {
		assert.False(t, strings.Contains(link, "/api/v1/visor/"), link)
	}
}

func TestFeatureTableEnabled(t *testing.T) {
	s := newTestServer(t, true)

	rec := get(s, "/api/v1/info")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duckdb")
	assert.Equal(t, http.StatusOK, get(s, "/api/v1/tables").Code)
}

func TestNewBadCatalog(t *testing.T) {
	_, err := New(Config{CatalogPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestCloseStopsVisorWithoutRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	cancelled := make(chan struct{})
	s, err := New(Config{
		CatalogPath: path,
		Loader: surface.LoaderFunc(func(ctx context.Context, _ string) ([]*surface.Feature, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("load was not cancelled")
	}
	_, err = s.Visor().Status(context.Background())
	assert.ErrorIs(t, err, visor.ErrStopped)
}
