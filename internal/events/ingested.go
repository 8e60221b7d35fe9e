package events

import (
	"context"
	"log/slog"
	"net/url"

	"trackly/internal/metrics"
)

// GeoResolver maps a client IP to a country and region.
type GeoResolver interface {
	Lookup(ip string) (country, region string, ok bool)
}

// VisitorIDFunc derives a visitor identifier from request attributes.
type VisitorIDFunc func(host, ip, userAgent string) string

// RequestMeta describes the transport-level origin of a payload.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// GateOptions toggles optional enrichment. Nil members are disabled.
type GateOptions struct {
	Geo       GeoResolver
	VisitorID VisitorIDFunc
}

// Gate validates candidate events and persists the ones that pass.
type Gate struct {
	store  *Store
	logger *slog.Logger
	opts   GateOptions
}

// NewGate creates an ingestion gate writing to store.
func NewGate(store *Store, logger *slog.Logger, opts GateOptions) *Gate {
	return &Gate{
		store:  store,
		logger: logger,
		opts:   opts,
	}
}

// Accept makes a single accept-or-reject decision. A rejected payload
// returns *ValidationError and nothing is written.
func (g *Gate) Accept(ctx context.Context, payload Payload, meta RequestMeta) (*Event, error) {
	if err := payload.Validate(); err != nil {
		metrics.RecordRejected("validation")
		g.logger.Debug("Rejected event payload", slog.Any("error", err))
		return nil, err
	}

	event := payload.toEvent()
	g.enrich(event, meta)

	if _, err := g.store.Append(ctx, event); err != nil {
		metrics.RecordRejected("store")
		return nil, err
	}

	metrics.RecordIngested(event.EventName)
	g.logger.Debug("Accepted event",
		slog.Uint64("id", uint64(event.ID)),
		slog.String("event_name", event.EventName),
		slog.String("path", event.Path))
	return event, nil
}

// enrich fills geo and visitor fields the client left empty. Values
// supplied in the payload always win.
func (g *Gate) enrich(event *Event, meta RequestMeta) {
	if meta.IP == "" {
		return
	}

	if g.opts.Geo != nil && event.Country == nil {
		if country, region, ok := g.opts.Geo.Lookup(meta.IP); ok {
			event.Country = &country
			if event.Region == nil && region != "" {
				event.Region = &region
			}
		}
	}

	if g.opts.VisitorID != nil && event.UserID == nil {
		host := ""
		if parsed, err := url.Parse(event.URL); err == nil {
			host = parsed.Hostname()
		}
		visitorID := g.opts.VisitorID(host, meta.IP, meta.UserAgent)
		event.UserID = &visitorID
	}
}
