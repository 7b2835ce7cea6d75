package humastar

import (
	"fmt"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// LinkConfig names the well-known endpoints of the link graph.
type LinkConfig struct {
	// Entry is the entry point that links to every collection.
	Entry string
	// Search is the IANA "search" target, if any.
	Search string
	// SkipTags excludes operations (SSE panels) from the graph.
	SkipTags []string
}

// Links holds RFC 8288 link headers generated from the OpenAPI graph,
// keyed by operation path.
type Links struct {
	cfg    LinkConfig
	byPath map[string][]string
}

// NewLinks returns an empty link graph. Its Transformer can be installed in
// the API config before Generate fills the graph.
func NewLinks(cfg LinkConfig) *Links {
	return &Links{cfg: cfg, byPath: map[string][]string{}}
}

// Generate walks the OpenAPI spec and generates hypermedia links.
// Call after all routes are registered.
func (l *Links) Generate(api huma.API) {
	oapi := api.OpenAPI()
	cfg := l.cfg
	l.byPath = map[string][]string{}

	// Collect collection paths (no {param}) and item paths (have {param}).
	type pathInfo struct {
		path string
		tags []string
	}
	var collections, items []pathInfo

	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if anyTag(tags, cfg.SkipTags) {
			continue
		}
		info := pathInfo{path: p, tags: tags}
		if strings.Contains(p, "{") {
			items = append(items, info)
		} else {
			collections = append(collections, info)
		}
	}

	// Item -> collection (rel="collection") + up (rel="up"). Nested items
	// like /categories/{key}/layers/{layer} climb to the nearest item.
	for _, item := range items {
		parent := path.Dir(item.path)
		for parent != "/" {
			if _, ok := oapi.Paths[parent]; ok {
				break
			}
			parent = path.Dir(parent)
		}
		if parent == "/" {
			continue
		}
		if !strings.Contains(parent, "{") {
			l.add(item.path, parent, "collection")
		}
		l.add(item.path, parent, "up")
	}

	// Collection -> item template (rel="item").
	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item.path) == coll.path {
				l.add(coll.path, item.path, "item")
			}
		}
	}

	// Collection -> entry point (rel="up") and search.
	for _, coll := range collections {
		if coll.path == cfg.Entry {
			continue
		}
		if cfg.Entry != "" {
			l.add(coll.path, cfg.Entry, "up")
		}
		if cfg.Search != "" && coll.path != cfg.Search {
			l.add(coll.path, cfg.Search, "search")
		}
	}

	// Items with PUT are editable in place.
	for _, item := range items {
		if oapi.Paths[item.path].Put != nil {
			l.add(item.path, item.path, "edit")
		}
	}

	// Cross-link collections sharing a tag.
	for i, a := range collections {
		for j, b := range collections {
			if i == j {
				continue
			}
			if sharedTag(a.tags, b.tags) != "" {
				l.add(a.path, b.path, lastSegment(b.path))
			}
		}
	}

	// Entry point links to every collection plus IANA discovery rels.
	if ep := cfg.Entry; ep != "" {
		for _, coll := range collections {
			if coll.path == ep {
				continue
			}
			l.add(ep, coll.path, lastSegment(coll.path))
		}
		l.add(ep, "/openapi.json", "describedby")
		l.add(ep, "/openapi.json", "service-desc")
		l.add(ep, "/docs", "service-doc")
		if cfg.Search != "" {
			l.add(ep, cfg.Search, "search")
		}
	}

	// describedby per resource: JSON Schema fragment in the OpenAPI spec.
	for _, all := range [][]pathInfo{collections, items} {
		for _, pi := range all {
			if ref := responseSchemaRef(oapi.Paths[pi.path]); ref != "" {
				l.add(pi.path, "/openapi.json#/components/schemas/"+ref, "describedby")
			}
		}
	}

	// Document the relationships as OpenAPI Response.Links.
	for p, pi := range oapi.Paths {
		headers, ok := l.byPath[p]
		if !ok {
			continue
		}
		for _, op := range operationsOf(pi) {
			if op == nil {
				continue
			}
			injectResponseLinks(op, headers)
		}
	}
}

// For returns the generated Link headers of an operation path.
func (l *Links) For(opPath string) []string {
	if l == nil {
		return nil
	}
	return l.byPath[opPath]
}

// Root returns the entry point links, for use by non-Huma handlers.
func (l *Links) Root() []string {
	if l == nil {
		return nil
	}
	return l.byPath[l.cfg.Entry]
}

// Transformer returns a Huma Transformer that injects Link headers at
// runtime: the generated graph for the operation, a self link for items,
// pagination links from Pager bodies and action links from Actor bodies.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link with the resolved URL.
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if p, ok := v.(Pager); ok {
			u := ctx.URL()
			for _, link := range p.PaginationLinks(&u) {
				ctx.AppendHeader("Link", link)
			}
		}

		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}

// --- helpers ---

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	for _, existing := range l.byPath[from] {
		if existing == val {
			return
		}
	}
	l.byPath[from] = append(l.byPath[from], val)
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range operationsOf(pi) {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func operationsOf(pi *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete}
}

func anyTag(tags, want []string) bool {
	for _, t := range tags {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}

func sharedTag(a, b []string) string {
	for _, at := range a {
		for _, bt := range b {
			if at == bt {
				return at
			}
		}
	}
	return ""
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks adds OpenAPI Link objects to the operation's success
// response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	if op.Responses == nil {
		return
	}
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  fmt.Sprintf("Related: %s", rel),
		}
	}
}

func responseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil || pi.Get.Responses == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				// "#/components/schemas/Foo" -> "Foo"
				parts := strings.Split(mt.Schema.Ref, "/")
				return parts[len(parts)-1]
			}
		}
	}
	return ""
}

func parseLinkHeader(h string) (rel, href string) {
	parts := strings.SplitN(h, ";", 2)
	if len(parts) < 2 {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(parts[0]), "<>")
	relPart := strings.TrimSpace(parts[1])
	if strings.HasPrefix(relPart, `rel="`) {
		rel = strings.Trim(relPart[4:], `"`)
	}
	return rel, href
}
