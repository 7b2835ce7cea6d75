package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/api"
	"github.com/joeblew999/plat-visor/internal/api/panel"
	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/db"
	"github.com/joeblew999/plat-visor/internal/detail"
	"github.com/joeblew999/plat-visor/internal/humastar"
	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/metrics"
	"github.com/joeblew999/plat-visor/internal/surface"
	"github.com/joeblew999/plat-visor/internal/templates"
	"github.com/joeblew999/plat-visor/internal/visor"
)

// Config holds the server configuration.
type Config struct {
	Host string
	Port string
	// CatalogPath is the YAML layer catalog; empty uses the embedded one.
	CatalogPath string
	// MapCRS overrides the catalog view CRS.
	MapCRS             string
	LoadTimeout        time.Duration
	MaxConcurrentLoads int
	// FeatureTable mirrors loaded features into an in-memory DuckDB table.
	FeatureTable bool
	// FragmentsDir loads panel templates from disk instead of the embedded set.
	FragmentsDir string
	DateLayout   string
	// Loader overrides the HTTP feature loader.
	Loader surface.Loader
}

// Server is the visor HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	links    *humastar.Links
	visor    *visor.Visor
	db       *sql.DB
	renderer *templates.Renderer
}

// New builds the visor and its HTTP API. The visor loop starts with Run.
func New(cfg Config) (*Server, error) {
	file, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	s := &Server{config: cfg, mux: http.NewServeMux()}

	if cfg.FragmentsDir != "" {
		s.renderer, err = templates.NewFromDir(cfg.FragmentsDir)
	} else {
		s.renderer, err = templates.New()
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading fragment templates")
	}

	var table *db.FeatureTable
	if cfg.FeatureTable {
		conn, err := db.Open()
		if err != nil {
			return nil, err
		}
		table, err = db.NewFeatureTable(context.Background(), conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		s.db = conn
	}

	loader := cfg.Loader
	if loader == nil {
		loader = surface.NewHTTPLoader(cfg.LoadTimeout)
	}
	s.visor, err = visor.New(visor.Config{
		Catalog:            file,
		MapCRS:             cfg.MapCRS,
		Loader:             loader,
		Table:              table,
		Extractor:          detail.Extractor{DateLayout: cfg.DateLayout},
		MaxConcurrentLoads: cfg.MaxConcurrentLoads,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	// Create Huma API with humago (pure stdlib) adapter
	s.links = humastar.NewLinks(humastar.LinkConfig{
		Entry:    "/health",
		Search:   "/api/v1/search",
		SkipTags: []string{"panel"},
	})
	humaConfig := huma.DefaultConfig("plat-visor API", api.Version)
	humaConfig.Info.Description = "Map viewer API: toggle catalog layers, load their features from WFS and GeoJSON services, search and identify features."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, s.links.Transformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes(table)
	return s, nil
}

func loadCatalog(path string) (catalog.File, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// Visor returns the served visor.
func (s *Server) Visor() *visor.Visor {
	return s.visor
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Run runs the visor loop until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.visor.Run(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close cancels the visor loads and closes server resources.
func (s *Server) Close() error {
	if s.visor != nil {
		s.visor.Close()
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Server) routes(table *db.FeatureTable) {
	// Methods named Register* are discovered by huma.AutoRegister.
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.visor))
	huma.AutoRegister(s.humaAPI, api.NewInfoHandler(s.config.CatalogPath, s.visor.MapCRS(), table != nil))
	huma.AutoRegister(s.humaAPI, api.NewDBHandler(table))

	// Datastar SSE panels
	huma.AutoRegister(s.humaAPI, panel.NewHandler(s.visor, s.renderer))

	s.links.Generate(s.humaAPI)

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-visor",
		"status":  "running",
	}); err != nil {
		logger.L().Debug("root_write_failed", "err", err)
	}
}
