package panel

import (
	"bytes"
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/detail"
	"github.com/joeblew999/plat-visor/internal/humastar"
	"github.com/joeblew999/plat-visor/internal/search"
)

type FeatureInput struct {
	Layer string `path:"layer" doc:"Layer key"`
	ID    string `path:"id" doc:"Feature id"`
}

// Search patches the results of the "q" signal.
func (h *Handler) Search(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := humastar.DecodeSignals[Signals](input)
	if err != nil {
		return nil, err
	}
	q := signals.Query

	return h.Stream(func(sse humastar.SSE) {
		results, err := h.visor.Search(ctx, q)
		if errors.Is(err, search.ErrInvalidQuery) {
			sse.Signals(map[string]any{"error": err.Error(), "results": 0})
			return
		}
		if err != nil {
			sse.Error(err.Error())
			return
		}
		items := make([]any, len(results))
		for i, r := range results {
			items[i] = r
		}
		sse.Patch(h.RenderList("search-result", items, "Sin resultados", "Ningún elemento coincide con la búsqueda"), ResultsSelector)
		sse.Signals(map[string]any{"error": "", "results": len(results)})
	}), nil
}

// Identify patches the details of the features under the x/y signals.
func (h *Handler) Identify(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := humastar.DecodeSignals[Signals](input)
	if err != nil {
		return nil, err
	}
	pt, ok := signals.Point()
	if !ok {
		return nil, huma.Error400BadRequest("x and y are required")
	}

	return h.Stream(func(sse humastar.SSE) {
		details, err := h.visor.Identify(ctx, pt, 0)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		items := make([]any, len(details))
		for i, d := range details {
			items[i] = d
		}
		sse.Patch(h.RenderList("feature-detail", items, "Sin elementos", "No hay elementos en este punto"), DetailSelector)
	}), nil
}

// Feature patches the details of one loaded feature.
func (h *Handler) Feature(ctx context.Context, input *FeatureInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		d, err := h.visor.Feature(ctx, input.Layer, input.ID)
		if errors.Is(err, detail.ErrUntaggedFeature) {
			sse.Patch(h.RenderList("feature-detail", nil, "Sin detalle", "El elemento no pertenece a una capa"), DetailSelector)
			return
		}
		if err != nil {
			sse.Error(err.Error())
			return
		}
		var buf bytes.Buffer
		if err := h.Renderer.RenderToBuffer(&buf, "feature-detail", d); err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Patch(buf.String(), DetailSelector)
	}), nil
}
