package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"trackly/internal/config"
	"trackly/internal/events"
	"trackly/internal/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// EventListResponse is one page of the event listing.
type EventListResponse struct {
	Count   int64          `json:"count"`
	Results []events.Event `json:"results"`
}

// TrackCreateAction ingests one event. It answers 201 with the stored record
// or 400 with a field error map.
func TrackCreateAction(ctx *cartridge.Context) error {
	var payload events.Payload
	if err := ctx.BodyParser(&payload); err != nil {
		ctx.Logger.Debug("Failed to parse event payload", slog.Any("error", err))
		return respondError(ctx, payloadDecodeError(err))
	}

	meta := events.RequestMeta{
		IP:        clientIP(ctx.Ctx),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	}
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		meta.UserAgent = forwardedUA
	}

	gate := services.NewGate(config.GetConfig(), ctx.DBManager, ctx.Logger)
	event, err := gate.Accept(ctx.UserContext(), payload, meta)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(event)
}

// EventsIndexAction lists events newest first, filtered by event_name,
// path and an inclusive start_date/end_date range.
func EventsIndexAction(ctx *cartridge.Context) error {
	filter, err := eventFilter(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	pageSize, err := intParam(ctx, "page_size", defaultPageSize, 1, maxPageSize)
	if err != nil {
		return respondError(ctx, err)
	}
	// Bounded so the offset below cannot overflow.
	page, err := intParam(ctx, "page", 1, 1, math.MaxInt/pageSize)
	if err != nil {
		return respondError(ctx, err)
	}

	store := services.NewStore(ctx.DBManager, ctx.Logger)
	list, total, err := store.List(ctx.UserContext(), filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return respondError(ctx, err)
	}
	if list == nil {
		list = []events.Event{}
	}

	return ctx.JSON(EventListResponse{Count: total, Results: list})
}

// EventShowAction returns a single event or 404.
func EventShowAction(ctx *cartridge.Context) error {
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return respondError(ctx, events.ErrEventNotFound)
	}

	store := services.NewStore(ctx.DBManager, ctx.Logger)
	event, err := store.Get(ctx.UserContext(), uint(id))
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(event)
}

// payloadDecodeError reports a mistyped field under its own key and any
// other decode failure under "body".
func payloadDecodeError(err error) *events.ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &events.ValidationError{Fields: map[string]string{
			typeErr.Field: fmt.Sprintf("Incorrect type. Expected %s, got %s.", typeErr.Type, typeErr.Value),
		}}
	}
	return &events.ValidationError{Fields: map[string]string{
		"body": "Request body must be a JSON object.",
	}}
}

func eventFilter(ctx *cartridge.Context) (events.Filter, error) {
	from, err := dateParam(ctx, "start_date", false)
	if err != nil {
		return events.Filter{}, err
	}
	to, err := dateParam(ctx, "end_date", true)
	if err != nil {
		return events.Filter{}, err
	}

	return events.Filter{
		EventName: ctx.Query("event_name"),
		Path:      ctx.Query("path"),
		From:      from,
		To:        to,
	}, nil
}
