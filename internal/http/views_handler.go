package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"bloglytics/internal/blogs"
)

const msgViewRecorded = "View recorded successfully"

// CreateViewParams is the public ingestion payload.
type CreateViewParams struct {
	BlogID   uint      `json:"blogId"`
	UserID   *uint     `json:"userId"`
	ViewedAt time.Time `json:"viewedAt"`
}

// CreateViewAction serves POST /api/v1/views, the public view ingestion
// endpoint.
func CreateViewAction(ctx *cartridge.Context) error {
	ctx.Logger.Debug("Received view request",
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.Path()))

	var params CreateViewParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse view request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request",
		})
	}

	if params.BlogID == 0 {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "blogId is required",
		})
	}

	input := &blogs.RecordViewInput{
		BlogID:   params.BlogID,
		UserID:   params.UserID,
		ViewedAt: params.ViewedAt,
	}

	view, err := blogs.RecordView(ctx.DBManager.GetConnection(), ctx.Logger, input)
	if err != nil {
		ctx.Logger.Error("Failed to record view", slog.Any("error", err))
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
			return ctx.Status(599).JSON(fiber.Map{}) // custom status code
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Blog not found",
				"code":  "BLOG_NOT_FOUND",
			})
		}
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record view",
			"code":  "COLLECTION_ERROR",
		})
	}

	ctx.Logger.Debug("Recorded view", slog.Uint64("viewId", uint64(view.ID)))
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message": msgViewRecorded,
		"status":  http.StatusAccepted,
	})
}
