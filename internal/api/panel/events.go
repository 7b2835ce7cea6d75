package panel

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-visor/internal/humastar"
)

// Events streams visor changes to the UI: the tree and loading bar are
// re-rendered on every event and a resource-changed event is dispatched.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := h.visor.Bus().Subscribe()
			defer h.visor.Bus().Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					switch ev.Resource {
					case "categories", "layers", "loading":
						h.patchMap(ctx, sse)
					case "base":
						sse.Signals(map[string]any{"base": ev.ID})
					}
					sse.DispatchCustomEvent("resource-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}
