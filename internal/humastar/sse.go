// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// Panel handlers embed [Handler], stream with [Handler.Stream] and decode
// posted signals with [DecodeSignals]. Link headers from the OpenAPI graph,
// pagination and state-dependent actions come from [Links], [PageBody] and
// [Actor].
package humastar

import (
	"bytes"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/templates"
)

// Handler is embedded by panel handlers that answer with Datastar SSE.
type Handler struct {
	Renderer *templates.Renderer
}

// EmptyInput is the input of panel routes with no parameters.
type EmptyInput struct{}

// Stream returns a StreamResponse that calls fn once the SSE stream is open.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			fn(NewSSE(ctx))
		},
	}
}

// RenderList renders each item with tmpl, or the empty-state fragment when
// there are none.
func (h *Handler) RenderList(tmpl string, items []any, emptyTitle, emptyMsg string) string {
	var buf bytes.Buffer
	if len(items) == 0 {
		h.render(&buf, "empty-state", map[string]string{"Title": emptyTitle, "Message": emptyMsg})
		return buf.String()
	}
	for _, item := range items {
		h.render(&buf, tmpl, item)
	}
	return buf.String()
}

// SelectOption is one <option> of a select fragment.
type SelectOption struct {
	Value    string
	Label    string
	Selected bool
}

// RenderSelect renders a placeholder option followed by options.
func (h *Handler) RenderSelect(placeholder string, options []SelectOption) string {
	var buf bytes.Buffer
	h.render(&buf, "select-option", SelectOption{Label: placeholder})
	for _, opt := range options {
		h.render(&buf, "select-option", opt)
	}
	return buf.String()
}

func (h *Handler) render(buf *bytes.Buffer, tmpl string, data any) {
	if err := h.Renderer.RenderToBuffer(buf, tmpl, data); err != nil {
		logger.L().Warn("fragment_render_failed", "template", tmpl, "err", err)
	}
}

// SSE is a Datastar event generator bound to one Huma stream.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE opens a Datastar stream on a humago context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the inner HTML of selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

// Replace replaces the element at selector.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
		datastar.WithViewTransitions(),
	)
}

// Error sets the "error" signal.
func (s SSE) Error(msg string) {
	s.Signals(map[string]any{"error": msg})
}

// Success sets the "success" signal and clears "error".
func (s SSE) Success(msg string) {
	s.Signals(map[string]any{"success": msg, "error": ""})
}

// Signals patches arbitrary signals.
func (s SSE) Signals(signals map[string]any) {
	if err := s.MarshalAndPatchSignals(signals); err != nil {
		logger.L().Debug("sse_signals_failed", "err", err)
	}
}
