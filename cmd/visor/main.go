package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/server"
	"github.com/joeblew999/plat-visor/internal/surface"
)

// Options defines all CLI flags and env vars for the visor server.
// Flags: --host, --port, --catalog, --map-crs, --load-timeout, --max-loads,
// --feature-table, --fragments-dir, --date-layout
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_CATALOG, ...
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8086"`
	Catalog      string `doc:"Layer catalog YAML (embedded catalog when empty)"`
	MapCRS       string `doc:"Map working CRS (catalog view CRS when empty)"`
	LoadTimeout  int    `doc:"Timeout of one feature request in seconds" default:"30"`
	MaxLoads     int    `doc:"Concurrent feature requests per view change" default:"4"`
	FeatureTable bool   `doc:"Mirror loaded features into an in-memory DuckDB table"`
	FragmentsDir string `doc:"Load panel templates from this directory"`
	DateLayout   string `doc:"Go layout for feature dates" default:"02/01/2006"`
}

// noFeatures stands in for the HTTP loader when only the API shape is needed.
var noFeatures = surface.LoaderFunc(func(context.Context, string) ([]*surface.Feature, error) {
	return nil, nil
})

func newServer(opts *Options, loader surface.Loader) (*server.Server, error) {
	return server.New(server.Config{
		Host:               opts.Host,
		Port:               fmt.Sprintf("%d", opts.Port),
		CatalogPath:        opts.Catalog,
		MapCRS:             opts.MapCRS,
		LoadTimeout:        time.Duration(opts.LoadTimeout) * time.Second,
		MaxConcurrentLoads: opts.MaxLoads,
		FeatureTable:       opts.FeatureTable,
		FragmentsDir:       opts.FragmentsDir,
		DateLayout:         opts.DateLayout,
		Loader:             loader,
	})
}

func mustServer(opts *Options) *server.Server {
	srv, err := newServer(opts, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		httpd := &http.Server{Addr: fmt.Sprintf("%s:%d", opts.Host, opts.Port)}

		hooks.OnStart(func() {
			srv := mustServer(opts)
			defer srv.Close()
			go srv.Run(ctx)

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			catalog := opts.Catalog
			if catalog == "" {
				catalog = "embedded"
			}

			fmt.Println()
			fmt.Printf("plat-visor API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Catalog: %s\n", catalog)
			fmt.Printf("  CRS:     %s\n", srv.Visor().MapCRS())
			fmt.Println()
			fmt.Printf("  Panels:  %s/api/v1/visor/events\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpd.Handler = srv
			if err := httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.L().Error("server_error", "err", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			cancel()
			shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := httpd.Shutdown(shutdown); err != nil {
				logger.L().Warn("shutdown_failed", "err", err)
			}
		})
	})

	cli.Root().Use = "visor"
	cli.Root().Short = "Interactive map viewer for categorized WFS and GeoJSON layers"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := writeSpec(os.Stdout, opts, useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// layers subcommand: print the catalog tree
	cli.Root().AddCommand(&cobra.Command{
		Use:   "layers",
		Short: "Print the layer catalog with category states",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			if err := printLayers(os.Stdout, opts.Catalog); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	})

	// wfs-url subcommand: preview the request of a layer
	cli.Root().AddCommand(&cobra.Command{
		Use:   "wfs-url <layer> <minX,minY,maxX,maxY[,CRS]>",
		Short: "Print the feature request a layer issues for an extent",
		Args:  cobra.ExactArgs(2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			u, err := requestURL(opts.Catalog, opts.MapCRS, args[0], args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(u)
		}),
	})

	cli.Run()
}

// writeSpec builds the API without loading any layer and writes its
// OpenAPI document.
func writeSpec(w io.Writer, opts *Options, useYAML bool) error {
	srv, err := newServer(opts, noFeatures)
	if err != nil {
		return err
	}
	defer srv.Close()
	spec := srv.OpenAPI()

	var output []byte
	if useYAML {
		output, err = yaml.Marshal(spec)
	} else {
		output, err = json.MarshalIndent(spec, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "marshaling spec")
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
