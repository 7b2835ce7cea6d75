package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/detail"
	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/search"
	"github.com/joeblew999/plat-visor/internal/visor"
)

// visorError maps a visor error to its HTTP status.
func visorError(err error) error {
	var nf *catalog.ErrNotFound
	switch {
	case errors.As(err, &nf):
		logger.L().Info("not_found", "type", nf.Type, "key", nf.Key)
		return huma.Error404NotFound(nf.Error())
	case errors.Is(err, search.ErrInvalidQuery):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, detail.ErrUntaggedFeature):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, visor.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	logger.L().Error("visor_operation_failed", "err", err)
	return huma.Error500InternalServerError("visor operation failed", err)
}
