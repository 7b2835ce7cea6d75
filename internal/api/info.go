package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	catalog string
	mapCRS  string
	tableOK bool
}

func NewInfoHandler(catalogPath, mapCRS string, tableOK bool) *InfoHandler {
	if catalogPath == "" {
		catalogPath = "embedded"
	}
	return &InfoHandler{catalog: catalogPath, mapCRS: mapCRS, tableOK: tableOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	Catalog  string   `json:"catalog" doc:"Layer catalog path, or embedded"`
	CRS      string   `json:"crs" doc:"Map working CRS"`
	DB       bool     `json:"db" doc:"Whether the feature table is available"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"wfs", "geojson", "search", "identify"}
	if h.tableOK {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-visor",
		Version:  Version,
		Catalog:  h.catalog,
		CRS:      h.mapCRS,
		DB:       h.tableOK,
		Features: features,
	}}, nil
}
