package analytics

import (
	"context"
	"fmt"
	"time"

	"trackly/internal/events"
)

// dailyEventCounts counts events per UTC day over the last days days,
// optionally restricted to one event name. Days without events are omitted
// and the result is ordered by day ascending.
func (a *Aggregator) dailyEventCounts(ctx context.Context, eventName string, days int) (result []DailyCount, err error) {
	start := time.Now()
	defer func() { a.finish("daily", start, err) }()

	f := a.filter(a.Window(days))
	f.EventName = eventName

	rows, err := a.store.CountBy(ctx, events.FieldDay, f, events.OrderByKey())
	if err != nil {
		return nil, fmt.Errorf("error fetching daily event counts: %w", err)
	}

	result = make([]DailyCount, 0, len(rows))
	for _, row := range rows {
		if row.Key == nil {
			continue
		}
		result = append(result, DailyCount{Day: *row.Key, Count: row.Count})
	}
	return result, nil
}

// pageviewsByCountry counts pageviews per known country, most viewed first.
func (a *Aggregator) pageviewsByCountry(ctx context.Context, days int) (result []CountryViews, err error) {
	start := time.Now()
	defer func() { a.finish("countries", start, err) }()

	f := a.pageviewFilter(a.Window(days))
	f.CountryNotNull = true

	rows, err := a.store.CountBy(ctx, events.FieldCountry, f)
	if err != nil {
		return nil, fmt.Errorf("error fetching pageviews by country: %w", err)
	}

	result = make([]CountryViews, 0, len(rows))
	for _, row := range rows {
		result = append(result, CountryViews{Country: row.KeyOr(""), Views: row.Count})
	}
	return result, nil
}
