// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/detail"
	"github.com/joeblew999/plat-visor/internal/humastar"
	"github.com/joeblew999/plat-visor/internal/proj"
	"github.com/joeblew999/plat-visor/internal/reconcile"
	"github.com/joeblew999/plat-visor/internal/search"
	"github.com/joeblew999/plat-visor/internal/visor"
	"github.com/joeblew999/plat-visor/internal/wfs"
)

// Version is reported by the health and info endpoints.
const Version = "0.1.0"

// Types

type KeyInput struct {
	Key string `path:"key" doc:"Category key" example:"concesiones"`
}

type LayerKeyInput struct {
	Key string `path:"key" doc:"Layer key" example:"concesiones_forestales"`
}

type ToggleBody struct {
	Active bool `json:"active" doc:"Show (true) or hide (false)"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

// CategoryBody is a category with its derived tri-state.
type CategoryBody struct {
	Key         string          `json:"key" doc:"Category key"`
	Title       string          `json:"title" doc:"Display title"`
	Description string          `json:"description,omitempty" doc:"Display description"`
	State       string          `json:"state" enum:"off,on,mixed" doc:"Derived state of the layers"`
	Active      bool            `json:"active" doc:"True when every layer is active"`
	Layers      []catalog.Layer `json:"layers" doc:"Layers in display order"`
}

var categoryActions = map[string]humastar.ActionDef{
	"enable":  {Rel: "enable", Pattern: "/api/v1/categories/%s", Method: http.MethodPut, Title: "Show every layer", Schema: "/openapi.json#/components/schemas/ToggleBody"},
	"disable": {Rel: "disable", Pattern: "/api/v1/categories/%s", Method: http.MethodPut, Title: "Hide every layer", Schema: "/openapi.json#/components/schemas/ToggleBody"},
}

// Actions offers enable unless everything is on and disable unless
// everything is off.
func (c CategoryBody) Actions() []humastar.Action {
	var defs []humastar.ActionDef
	if c.State != catalog.StateOn.String() {
		defs = append(defs, categoryActions["enable"])
	}
	if c.State != catalog.StateOff.String() {
		defs = append(defs, categoryActions["disable"])
	}
	return humastar.ActionsFor(c.Key, defs)
}

// NewCategoryBody derives the response body of c.
func NewCategoryBody(c catalog.Category) CategoryBody {
	return CategoryBody{
		Key:         c.Key,
		Title:       c.Title,
		Description: c.Description,
		State:       catalog.ParentState(c).String(),
		Active:      c.Active,
		Layers:      c.Layers,
	}
}

// ToggleResultBody is the category after a toggle and the map delta it caused.
type ToggleResultBody struct {
	Category CategoryBody `json:"category" doc:"Category after the toggle"`
	Added    []string     `json:"added" doc:"Layer keys added to the map"`
	Removed  []string     `json:"removed" doc:"Layer keys removed from the map"`
}

func (b ToggleResultBody) Actions() []humastar.Action { return b.Category.Actions() }

type RequestURLBody struct {
	Layer  string    `json:"layer" doc:"Layer key"`
	URL    string    `json:"url" doc:"Request the layer issues for the extent"`
	Extent []float64 `json:"extent" doc:"Extent in the map CRS"`
	CRS    string    `json:"crs" doc:"Map CRS"`
}

type ViewBody struct {
	Extent []float64 `json:"extent" minItems:"4" maxItems:"4" doc:"minX,minY,maxX,maxY"`
	CRS    string    `json:"crs,omitempty" doc:"CRS of the extent; defaults to the map CRS" example:"EPSG:4326"`
}

type BaseLayersBody struct {
	Current string              `json:"current,omitempty" doc:"Current base layer key"`
	Layers  []catalog.BaseLayer `json:"layers" doc:"Available base layers"`
}

type BaseLayerBody struct {
	Key string `json:"key" doc:"Base layer key" example:"topografico"`
}

type BaseTilesInput struct {
	Zoom int `query:"zoom" default:"12" minimum:"0" maximum:"22" doc:"Tile zoom level"`
}

type BaseTilesBody struct {
	Zoom  int      `json:"zoom"`
	Tiles []string `json:"tiles" doc:"Base layer tile URLs covering the view"`
}

type SearchInput struct {
	Q      string `query:"q" doc:"Text to match, at least 3 characters" example:"perez"`
	Offset int    `query:"offset" default:"0" minimum:"0" doc:"Results to skip"`
	Limit  int    `query:"limit" default:"20" minimum:"1" maximum:"200" doc:"Page size"`
}

type PointBody struct {
	X         float64 `json:"x" doc:"X in the map CRS" example:"-70.5"`
	Y         float64 `json:"y" doc:"Y in the map CRS" example:"-11.8"`
	Tolerance float64 `json:"tolerance,omitempty" minimum:"0" doc:"Hit tolerance in map units; defaults to a few pixels at the current view"`
}

type IdentifyBody struct {
	Features []detail.Detail `json:"features" doc:"Features under the point, topmost first"`
}

type HoverBody struct {
	Over   bool   `json:"over" doc:"True when a feature is under the point"`
	Cursor string `json:"cursor" doc:"Map cursor after the hover"`
}

type FeatureInput struct {
	Layer string `path:"layer" doc:"Layer key" example:"concesiones_forestales"`
	ID    string `path:"id" doc:"Feature id"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	visor *visor.Visor
}

func NewAPIHandler(v *visor.Visor) *APIHandler {
	return &APIHandler{visor: v}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCategories registers the layer tree routes.
func (h *APIHandler) RegisterCategories(api huma.API) {
	huma.Get(api, "/api/v1/categories", h.GetCategories, huma.OperationTags("categories"))
	huma.Get(api, "/api/v1/categories/{key}", h.GetCategory, huma.OperationTags("categories"))
	huma.Put(api, "/api/v1/categories/{key}", h.ToggleCategory, huma.OperationTags("categories"))
	huma.Put(api, "/api/v1/categories/{key}/layers/{layer}", h.ToggleLayer, huma.OperationTags("categories"))
}

// RegisterLayers registers layer definition routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{key}", h.GetLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{key}/request-url", h.GetRequestURL, huma.OperationTags("layers"))
}

// RegisterMap registers map state routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/status", h.GetStatus, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/view", h.PutView, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/view/reset", h.ResetView, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/base-layers", h.GetBaseLayers, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/base-layer", h.PutBaseLayer, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/base-layer/tiles", h.GetBaseTiles, huma.OperationTags("map"))
}

// RegisterFeatures registers search and feature detail routes.
func (h *APIHandler) RegisterFeatures(api huma.API) {
	huma.Get(api, "/api/v1/search", h.Search, huma.OperationTags("features"))
	huma.Post(api, "/api/v1/identify", h.Identify, huma.OperationTags("features"))
	huma.Post(api, "/api/v1/hover", h.Hover, huma.OperationTags("features"))
	huma.Get(api, "/api/v1/features/{layer}/{id}", h.GetFeature, huma.OperationTags("features"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetCategories(ctx context.Context, input *struct{}) (*struct{ Body []CategoryBody }, error) {
	tree, err := h.visor.Tree(ctx)
	if err != nil {
		return nil, visorError(err)
	}
	cats := tree.Categories()
	out := make([]CategoryBody, len(cats))
	for i, c := range cats {
		out[i] = NewCategoryBody(c)
	}
	return &struct{ Body []CategoryBody }{Body: out}, nil
}

func (h *APIHandler) GetCategory(ctx context.Context, input *KeyInput) (*struct{ Body CategoryBody }, error) {
	c, err := h.category(ctx, input.Key)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct{ Body CategoryBody }{Body: NewCategoryBody(c)}, nil
}

func (h *APIHandler) ToggleCategory(ctx context.Context, input *struct {
	KeyInput
	Body ToggleBody
}) (*struct{ Body ToggleResultBody }, error) {
	res, err := h.visor.ToggleCategory(ctx, input.Key, input.Body.Active)
	if err != nil {
		return nil, visorError(err)
	}
	return h.toggled(ctx, input.Key, res)
}

func (h *APIHandler) ToggleLayer(ctx context.Context, input *struct {
	KeyInput
	Layer string `path:"layer" doc:"Layer key" example:"concesiones_forestales"`
	Body  ToggleBody
}) (*struct{ Body ToggleResultBody }, error) {
	res, err := h.visor.ToggleLayer(ctx, input.Key, input.Layer, input.Body.Active)
	if err != nil {
		return nil, visorError(err)
	}
	return h.toggled(ctx, input.Key, res)
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body []catalog.Layer }, error) {
	tree, err := h.visor.Tree(ctx)
	if err != nil {
		return nil, visorError(err)
	}
	layers := []catalog.Layer{}
	for _, c := range tree.Categories() {
		layers = append(layers, c.Layers...)
	}
	return &struct{ Body []catalog.Layer }{Body: layers}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *LayerKeyInput) (*struct{ Body catalog.Layer }, error) {
	def, err := h.visor.Layer(ctx, input.Key)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct{ Body catalog.Layer }{Body: def}, nil
}

func (h *APIHandler) GetRequestURL(ctx context.Context, input *struct {
	LayerKeyInput
	BBox string `query:"bbox" doc:"minX,minY,maxX,maxY with optional trailing CRS; defaults to the current view" example:"-70.5,-11.8,-70.4,-11.6,EPSG:4326"`
}) (*struct{ Body RequestURLBody }, error) {
	extent, err := h.extent(ctx, input.BBox)
	if err != nil {
		return nil, err
	}
	u, err := h.visor.RequestURL(ctx, input.Key, extent)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct{ Body RequestURLBody }{Body: RequestURLBody{
		Layer:  input.Key,
		URL:    u,
		Extent: boundSlice(extent),
		CRS:    h.visor.MapCRS(),
	}}, nil
}

func (h *APIHandler) GetStatus(ctx context.Context, input *struct{}) (*struct{ Body visor.Status }, error) {
	return h.status(ctx)
}

func (h *APIHandler) PutView(ctx context.Context, input *struct{ Body ViewBody }) (*struct{ Body visor.Status }, error) {
	e := input.Body.Extent
	if len(e) != 4 || e[0] >= e[2] || e[1] >= e[3] {
		return nil, huma.Error422UnprocessableEntity("extent must be minX,minY,maxX,maxY with min < max")
	}
	b := orb.Bound{Min: orb.Point{e[0], e[1]}, Max: orb.Point{e[2], e[3]}}
	if crs := input.Body.CRS; crs != "" {
		var err error
		if b, err = proj.TransformBound(b, crs, h.visor.MapCRS()); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
	}
	if err := h.visor.SetView(ctx, b); err != nil {
		return nil, visorError(err)
	}
	return h.status(ctx)
}

func (h *APIHandler) ResetView(ctx context.Context, input *struct{}) (*struct{ Body visor.Status }, error) {
	if err := h.visor.ResetView(ctx); err != nil {
		return nil, visorError(err)
	}
	return h.status(ctx)
}

func (h *APIHandler) GetBaseLayers(ctx context.Context, input *struct{}) (*struct{ Body BaseLayersBody }, error) {
	return h.baseLayers(ctx)
}

func (h *APIHandler) PutBaseLayer(ctx context.Context, input *struct{ Body BaseLayerBody }) (*struct{ Body BaseLayersBody }, error) {
	if err := h.visor.SetBaseLayer(ctx, input.Body.Key); err != nil {
		return nil, visorError(err)
	}
	return h.baseLayers(ctx)
}

func (h *APIHandler) GetBaseTiles(ctx context.Context, input *BaseTilesInput) (*struct{ Body BaseTilesBody }, error) {
	tiles, err := h.visor.BaseTiles(ctx, maptile.Zoom(input.Zoom))
	if err != nil {
		return nil, visorError(err)
	}
	if tiles == nil {
		tiles = []string{}
	}
	return &struct{ Body BaseTilesBody }{Body: BaseTilesBody{Zoom: input.Zoom, Tiles: tiles}}, nil
}

func (h *APIHandler) Search(ctx context.Context, input *SearchInput) (*struct {
	Body humastar.PageBody[search.Result]
}, error) {
	results, err := h.visor.Search(ctx, input.Q)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct {
		Body humastar.PageBody[search.Result]
	}{Body: humastar.Paginate(results, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) Identify(ctx context.Context, input *struct{ Body PointBody }) (*struct{ Body IdentifyBody }, error) {
	pt := orb.Point{input.Body.X, input.Body.Y}
	details, err := h.visor.Identify(ctx, pt, input.Body.Tolerance)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct{ Body IdentifyBody }{Body: IdentifyBody{Features: details}}, nil
}

func (h *APIHandler) Hover(ctx context.Context, input *struct{ Body PointBody }) (*struct{ Body HoverBody }, error) {
	over, err := h.visor.Hover(ctx, orb.Point{input.Body.X, input.Body.Y})
	if err != nil {
		return nil, visorError(err)
	}
	body := HoverBody{Over: over}
	if over {
		body.Cursor = "pointer"
	}
	return &struct{ Body HoverBody }{Body: body}, nil
}

func (h *APIHandler) GetFeature(ctx context.Context, input *FeatureInput) (*struct{ Body detail.Detail }, error) {
	d, err := h.visor.Feature(ctx, input.Layer, input.ID)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct{ Body detail.Detail }{Body: d}, nil
}

// helpers

func (h *APIHandler) category(ctx context.Context, key string) (catalog.Category, error) {
	tree, err := h.visor.Tree(ctx)
	if err != nil {
		return catalog.Category{}, err
	}
	c, ok := tree.Category(key)
	if !ok {
		return catalog.Category{}, &catalog.ErrNotFound{Type: "category", Key: key}
	}
	return c, nil
}

func (h *APIHandler) toggled(ctx context.Context, key string, res reconcile.Result) (*struct{ Body ToggleResultBody }, error) {
	c, err := h.category(ctx, key)
	if err != nil {
		return nil, visorError(err)
	}
	body := ToggleResultBody{Category: NewCategoryBody(c), Added: res.Added, Removed: res.Removed}
	if body.Added == nil {
		body.Added = []string{}
	}
	if body.Removed == nil {
		body.Removed = []string{}
	}
	return &struct{ Body ToggleResultBody }{Body: body}, nil
}

func (h *APIHandler) status(ctx context.Context) (*struct{ Body visor.Status }, error) {
	s, err := h.visor.Status(ctx)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct{ Body visor.Status }{Body: s}, nil
}

func (h *APIHandler) baseLayers(ctx context.Context) (*struct{ Body BaseLayersBody }, error) {
	s, err := h.visor.Status(ctx)
	if err != nil {
		return nil, visorError(err)
	}
	return &struct{ Body BaseLayersBody }{Body: BaseLayersBody{
		Current: s.Base,
		Layers:  h.visor.BaseLayers(),
	}}, nil
}

// extent parses a bbox query value into the map CRS, falling back to the
// current view.
func (h *APIHandler) extent(ctx context.Context, bbox string) (orb.Bound, error) {
	if strings.TrimSpace(bbox) == "" {
		s, err := h.visor.Status(ctx)
		if err != nil {
			return orb.Bound{}, visorError(err)
		}
		if len(s.View) != 4 {
			return orb.Bound{}, huma.Error422UnprocessableEntity("bbox is required while the map has no view")
		}
		return orb.Bound{Min: orb.Point{s.View[0], s.View[1]}, Max: orb.Point{s.View[2], s.View[3]}}, nil
	}

	b, crs, ok := wfs.ParseBBox(bbox)
	if !ok {
		return orb.Bound{}, huma.Error422UnprocessableEntity("bbox must be minX,minY,maxX,maxY[,CRS]")
	}
	if crs == "" {
		return b, nil
	}
	out, err := proj.TransformBound(b, crs, h.visor.MapCRS())
	if err != nil {
		return orb.Bound{}, huma.Error422UnprocessableEntity(err.Error())
	}
	return out, nil
}

func boundSlice(b orb.Bound) []float64 {
	return []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}
