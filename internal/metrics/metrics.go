package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReconcileTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visor_reconcile_total",
		Help: "Total reconciliations that changed the map",
	})
	LayersAddedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visor_layers_added_total",
		Help: "Rendered layers added by the reconciler",
	}, []string{"layer"})
	LayersRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visor_layers_removed_total",
		Help: "Rendered layers removed by the reconciler",
	}, []string{"layer"})
	RenderedLayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "visor_rendered_layers",
		Help: "Managed layers currently on the map",
	})
	LoadsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "visor_loads_in_flight",
		Help: "Feature loads started and not yet finished",
	})
	LoadErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visor_load_errors_total",
		Help: "Feature loads that failed",
	}, []string{"layer"})
	FeaturesLoadedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visor_features_loaded_total",
		Help: "Features added to rendered layers",
	}, []string{"layer"})
	SearchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visor_search_total",
		Help: "Total feature searches",
	})
	SearchResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "visor_search_results",
		Help:    "Results returned per search",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})
	OperationDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visor_operation_duration_ms",
		Help:    "Visor operation duration in milliseconds, queueing included",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(ReconcileTotal)
	prometheus.MustRegister(LayersAddedTotal)
	prometheus.MustRegister(LayersRemovedTotal)
	prometheus.MustRegister(RenderedLayers)
	prometheus.MustRegister(LoadsInFlight)
	prometheus.MustRegister(LoadErrorsTotal)
	prometheus.MustRegister(FeaturesLoadedTotal)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(SearchResults)
	prometheus.MustRegister(OperationDurationMs)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
