// Package http contains the JSON API handlers.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"bloglytics/internal/analytics"
	"bloglytics/internal/config"
	"bloglytics/internal/filters"
	"bloglytics/internal/timeseries"
)

// TopAnalyticsAction serves GET /api/v1/analytics/top. The dimension query
// parameter selects blog, country or user ranking.
func TopAnalyticsAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return respondQueryError(ctx, err)
	}

	dimension := ctx.Query("dimension", "blog")
	defaults := analytics.DefaultsFromConfig(config.GetConfig())

	rows, err := analytics.Top(ctx.DBManager.GetConnection(), dimension, params, defaults)
	if err != nil {
		return respondQueryError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"data": rows})
}

// BlogViewsAnalyticsAction serves GET /api/v1/analytics/blog-views, the
// per-period breakdown of views grouped by dimension.
func BlogViewsAnalyticsAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return respondQueryError(ctx, err)
	}

	dimension := ctx.Query("dimension", "country")

	rows, err := analytics.Breakdown(ctx.DBManager.GetConnection(), dimension, params)
	if err != nil {
		return respondQueryError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"data": rows})
}

// PerformanceAnalyticsAction serves GET /api/v1/analytics/performance,
// reading views and blog creations from the rollup tables.
func PerformanceAnalyticsAction(ctx *cartridge.Context) error {
	params, err := queryParams(ctx)
	if err != nil {
		return respondQueryError(ctx, err)
	}

	periodSize := ctx.Query("period_size", "month")

	rows, err := analytics.Performance(ctx.DBManager.GetConnection(), periodSize, params)
	if err != nil {
		return respondQueryError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"data": rows})
}

// queryParams parses the query string inputs shared by the analytics
// endpoints. The filters parameter carries a JSON-encoded filter tree.
func queryParams(ctx *cartridge.Context) (analytics.Params, error) {
	params := analytics.Params{
		Start:       ctx.Query("start", ""),
		End:         ctx.Query("end", ""),
		Granularity: ctx.Query("granularity", ""),
	}

	if raw := ctx.Query("filters", ""); raw != "" {
		node, err := filters.ParseJSON([]byte(raw))
		if err != nil {
			return params, err
		}
		params.Filters = node
	}

	if raw := ctx.Query("limit", ""); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return params, fiber.NewError(http.StatusBadRequest, "limit must be an integer")
		}
		params.Limit = limit
	}

	if raw := ctx.Query("author_id", ""); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return params, fiber.NewError(http.StatusBadRequest, "author_id must be an integer")
		}
		authorID := uint(id)
		params.AuthorID = &authorID
	}

	return params, nil
}

// respondQueryError maps the query layer's sentinel errors to 400 and
// everything else to 500.
func respondQueryError(ctx *cartridge.Context, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return ctx.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	switch {
	case errors.Is(err, filters.ErrInvalidFilter),
		errors.Is(err, timeseries.ErrUnsupportedGranularity),
		errors.Is(err, analytics.ErrInvalidDate),
		errors.Is(err, analytics.ErrInvalidDimension):
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Logger.Error("Analytics query failed", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to run analytics query",
	})
}
