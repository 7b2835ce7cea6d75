package panel

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-visor/internal/humastar"
	"github.com/joeblew999/plat-visor/internal/reconcile"
)

type ToggleCategoryInput struct {
	Key    string `path:"key" doc:"Category key"`
	Active bool   `query:"active" doc:"Show (true) or hide (false)"`
}

type ToggleLayerInput struct {
	Key    string `path:"key" doc:"Category key"`
	Layer  string `path:"layer" doc:"Layer key"`
	Active bool   `query:"active" doc:"Show (true) or hide (false)"`
}

// Tree patches the layer tree and the loading bar.
func (h *Handler) Tree(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		h.patchMap(ctx, sse)
	}), nil
}

func (h *Handler) ToggleCategory(ctx context.Context, input *ToggleCategoryInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		res, err := h.visor.ToggleCategory(ctx, input.Key, input.Active)
		h.toggled(ctx, sse, input.Key, res, err)
	}), nil
}

func (h *Handler) ToggleLayer(ctx context.Context, input *ToggleLayerInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		res, err := h.visor.ToggleLayer(ctx, input.Key, input.Layer, input.Active)
		h.toggled(ctx, sse, input.Layer, res, err)
	}), nil
}

func (h *Handler) toggled(ctx context.Context, sse humastar.SSE, id string, res reconcile.Result, err error) {
	if err != nil {
		sse.Error(err.Error())
		return
	}
	h.patchMap(ctx, sse)
	sse.DispatchCustomEvent("layers-changed", map[string]any{
		"id": id, "added": res.Added, "removed": res.Removed,
	})
}

// BaseLayers patches the base layer select.
func (h *Handler) BaseLayers(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		s, err := h.visor.Status(ctx)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		var opts []humastar.SelectOption
		for _, b := range h.visor.BaseLayers() {
			opts = append(opts, humastar.SelectOption{Value: b.Key, Label: b.Title, Selected: b.Key == s.Base})
		}
		sse.Patch(h.RenderSelect("Capa base", opts), BaseSelector)
	}), nil
}

// SetBaseLayer swaps the base layer named by the "base" signal.
func (h *Handler) SetBaseLayer(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := humastar.DecodeSignals[Signals](input)
	if err != nil {
		return nil, err
	}
	key := signals.Base
	if key == "" {
		return nil, huma.Error400BadRequest("Base layer is required")
	}

	return h.Stream(func(sse humastar.SSE) {
		if err := h.visor.SetBaseLayer(ctx, key); err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Success(fmt.Sprintf("Capa base: %s", key))
	}), nil
}
