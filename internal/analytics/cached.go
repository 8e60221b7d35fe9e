package analytics

import (
	"context"
	"strconv"
	"time"

	"trackly/internal/pkg/reportcache"
)

// cacheKey scopes a report key to the current UTC day so cached windows
// never straddle midnight.
func (a *Aggregator) cacheKey(report string, args ...string) string {
	parts := append([]string{report, a.clock.Now(time.UTC).Format(time.DateOnly)}, args...)
	return reportcache.Key(parts...)
}

// DailyEventCounts counts events per UTC day over the last days days,
// optionally restricted to one event name. Days without events are omitted
// and the result is ordered by day ascending.
func (a *Aggregator) DailyEventCounts(ctx context.Context, eventName string, days int) ([]DailyCount, error) {
	key := a.cacheKey("daily", eventName, strconv.Itoa(days))
	return reportcache.Remember(ctx, a.cache, key, func() ([]DailyCount, error) {
		return a.dailyEventCounts(ctx, eventName, days)
	})
}

// PageviewsByCountry counts pageviews per known country, most viewed first.
func (a *Aggregator) PageviewsByCountry(ctx context.Context, days int) ([]CountryViews, error) {
	key := a.cacheKey("countries", strconv.Itoa(days))
	return reportcache.Remember(ctx, a.cache, key, func() ([]CountryViews, error) {
		return a.pageviewsByCountry(ctx, days)
	})
}

// TopPages returns the limit most viewed paths with their landing, exit and
// bounce figures.
func (a *Aggregator) TopPages(ctx context.Context, days, limit int) ([]PagePerformance, error) {
	key := a.cacheKey("top-pages", strconv.Itoa(days), strconv.Itoa(limit))
	return reportcache.Remember(ctx, a.cache, key, func() ([]PagePerformance, error) {
		return a.topPages(ctx, days, limit)
	})
}

// PageMetrics reports pageviews per distinct user overall and per day.
func (a *Aggregator) PageMetrics(ctx context.Context, days int) (*PageMetrics, error) {
	key := a.cacheKey("page-metrics", strconv.Itoa(days))
	return reportcache.Remember(ctx, a.cache, key, func() (*PageMetrics, error) {
		return a.pageMetrics(ctx, days)
	})
}

// SessionMetrics reports session totals for the window.
func (a *Aggregator) SessionMetrics(ctx context.Context, days int) (*SessionMetrics, error) {
	key := a.cacheKey("sessions", strconv.Itoa(days))
	return reportcache.Remember(ctx, a.cache, key, func() (*SessionMetrics, error) {
		return a.sessionMetrics(ctx, days)
	})
}

// TrafficSources reports sessions and bounces per utm_source followed by the
// Overall row.
func (a *Aggregator) TrafficSources(ctx context.Context, days int) ([]SourceStats, error) {
	key := a.cacheKey("traffic-sources", strconv.Itoa(days))
	return reportcache.Remember(ctx, a.cache, key, func() ([]SourceStats, error) {
		return a.trafficSources(ctx, days)
	})
}

// TopReferrers groups pageviews by referring site.
func (a *Aggregator) TopReferrers(ctx context.Context, days, limit int) ([]ReferrerViews, error) {
	key := a.cacheKey("referrers", strconv.Itoa(days), strconv.Itoa(limit))
	return reportcache.Remember(ctx, a.cache, key, func() ([]ReferrerViews, error) {
		return a.topReferrers(ctx, days, limit)
	})
}
