// Package panel contains Datastar SSE handlers for the visor side panels:
// the layer tree, search results, feature details and the live event stream.
package panel

import (
	"bytes"
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/humastar"
	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/templates"
	"github.com/joeblew999/plat-visor/internal/visor"
)

// Element selectors patched by the handlers.
const (
	TreeSelector    = "#layer-tree"
	LoadingSelector = "#loading-bar"
	ResultsSelector = "#search-results"
	DetailSelector  = "#feature-detail"
	BaseSelector    = "#base-layer"
)

// Handler serves the panels of one visor.
type Handler struct {
	humastar.Handler
	visor *visor.Visor
}

// NewHandler creates the panel handler.
func NewHandler(v *visor.Visor, renderer *templates.Renderer) *Handler {
	return &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		visor:   v,
	}
}

// RegisterRoutes registers the panel routes.
func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("panel")
	huma.Get(api, "/api/v1/visor/tree", h.Tree, tags)
	huma.Put(api, "/api/v1/visor/categories/{key}", h.ToggleCategory, tags)
	huma.Put(api, "/api/v1/visor/categories/{key}/layers/{layer}", h.ToggleLayer, tags)
	huma.Get(api, "/api/v1/visor/base-layers", h.BaseLayers, tags)
	huma.Put(api, "/api/v1/visor/base-layer", h.SetBaseLayer, tags)
	huma.Post(api, "/api/v1/visor/search", h.Search, tags)
	huma.Post(api, "/api/v1/visor/identify", h.Identify, tags)
	huma.Get(api, "/api/v1/visor/features/{layer}/{id}", h.Feature, tags)
	huma.Get(api, "/api/v1/visor/events", h.Events, tags)
}

// Signals are the Datastar signals the panels post: the search box, the
// clicked map point and the base layer select.
type Signals struct {
	Query string   `json:"q"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Base  string   `json:"base"`
}

// Point returns the clicked point; false until both coordinates are set.
func (s Signals) Point() (orb.Point, bool) {
	if s.X == nil || s.Y == nil {
		return orb.Point{}, false
	}
	return orb.Point{*s.X, *s.Y}, true
}

// CategoryData is the template data of one category.
type CategoryData struct {
	Key    string
	Title  string
	State  string
	Layers []catalog.Layer
}

func (h *Handler) renderTree(ctx context.Context) (string, error) {
	tree, err := h.visor.Tree(ctx)
	if err != nil {
		return "", err
	}
	cats := tree.Categories()
	items := make([]any, len(cats))
	for i, c := range cats {
		items[i] = CategoryData{
			Key:    c.Key,
			Title:  c.Title,
			State:  catalog.ParentState(c).String(),
			Layers: c.Layers,
		}
	}
	return h.RenderList("layer-tree", items, "Sin capas", "El catálogo no tiene categorías"), nil
}

func (h *Handler) renderLoading(ctx context.Context) (string, error) {
	s, err := h.visor.Status(ctx)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := h.Renderer.RenderToBuffer(&buf, "loading-bar", s); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// patchMap refreshes the tree and the loading bar.
func (h *Handler) patchMap(ctx context.Context, sse humastar.SSE) {
	tree, err := h.renderTree(ctx)
	if err != nil {
		sse.Error(err.Error())
		return
	}
	sse.Patch(tree, TreeSelector)

	bar, err := h.renderLoading(ctx)
	if err != nil {
		logger.L().Warn("panel_render_failed", "fragment", "loading-bar", "err", err)
		return
	}
	sse.Replace(bar, LoadingSelector)
}
