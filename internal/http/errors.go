package http

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"trackly/internal/events"
)

const (
	errEventNotFound      = "Event not found"
	errStorageUnavailable = "Storage unavailable"
	errInternal           = "Internal server error"
)

// QueryParameterError reports a query parameter that could not be used.
type QueryParameterError struct {
	Parameter string
	Message   string
}

func (e *QueryParameterError) Error() string {
	return fmt.Sprintf("invalid query parameter %s: %s", e.Parameter, e.Message)
}

// respondError maps domain errors to HTTP responses. Aggregates are never
// partially returned: any store failure becomes a 503.
func respondError(ctx *cartridge.Context, err error) error {
	var validationErr *events.ValidationError
	var paramErr *QueryParameterError

	switch {
	case errors.As(err, &validationErr):
		return ctx.Status(fiber.StatusBadRequest).JSON(validationErr.Fields)
	case errors.As(err, &paramErr):
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":     paramErr.Message,
			"parameter": paramErr.Parameter,
		})
	case errors.Is(err, events.ErrEventNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": errEventNotFound})
	case events.IsStoreError(err):
		ctx.Logger.Error("Event store failure",
			slog.String("path", ctx.Path()),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": errStorageUnavailable})
	default:
		ctx.Logger.Error("Request failed",
			slog.String("path", ctx.Path()),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": errInternal})
	}
}
