// Package analytics computes read-only reports over the event log.
//
// The package is organized into focused files:
//   - analytics.go: the Aggregator and report row types
//   - daily.go: per-day and per-country counts
//   - pages.go: top pages and pages-per-user metrics
//   - sources.go: traffic sources and referrers
//   - sessions.go: session totals
//   - cached.go: the exported report methods, served through the report cache
//
// Every report covers a trailing window that starts at UTC midnight `days`
// days ago and ends now. Ratios with a zero denominator are reported as 0.
package analytics

import (
	"log/slog"
	"time"

	"trackly/internal/events"
	"trackly/internal/metrics"
	"trackly/internal/pkg/async"
	"trackly/internal/pkg/reportcache"
	"trackly/internal/sessions"
	"trackly/internal/timeframe"
)

// DailyCount is the number of events on one calendar day.
type DailyCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// CountryViews is the number of pageviews from one country.
type CountryViews struct {
	Country string `json:"country"`
	Views   int64  `json:"views"`
}

// PagePerformance describes one of the most viewed paths. Page is the
// path's title when one was recorded, otherwise the path itself.
type PagePerformance struct {
	Page        string  `json:"page"`
	Path        string  `json:"path"`
	Views       int64   `json:"views"`
	LandingPage int     `json:"landing_page"`
	ExitPage    int     `json:"exit_page"`
	BounceRate  float64 `json:"bounce_rate"`
}

// SourceStats summarizes sessions arriving through one utm_source.
type SourceStats struct {
	Source     string  `json:"source"`
	Sessions   int64   `json:"sessions"`
	Bounces    int64   `json:"bounces"`
	BounceRate float64 `json:"bounceRate"`
}

// PageMetrics relates pageviews to distinct users.
type PageMetrics struct {
	TotalViews  int64        `json:"total_views"`
	UniqueUsers int64        `json:"unique_users"`
	AvgPerUser  float64      `json:"avg_per_user"`
	Trend       []TrendPoint `json:"trend"`
}

// TrendPoint is the pages-per-user average for one day.
type TrendPoint struct {
	Date            string  `json:"date"`
	AvgPagesPerUser float64 `json:"avg_pages_per_user"`
}

// SessionMetrics summarizes every session in the window.
type SessionMetrics struct {
	TotalSessions int     `json:"total_sessions"`
	Bounces       int     `json:"bounces"`
	BounceRate    float64 `json:"bounce_rate"`
	AvgDuration   float64 `json:"avg_duration"`
	AvgPages      float64 `json:"avg_pages"`
}

// ReferrerViews is the number of pageviews from one referring site.
type ReferrerViews struct {
	Source string `json:"source"`
	Views  int64  `json:"views"`
}

// Aggregator answers report queries against the event store.
type Aggregator struct {
	store  *events.Store
	engine *sessions.Engine
	clock  timeframe.TimeProvider
	pool   *async.Pool
	cache  *reportcache.Cache
	logger *slog.Logger
}

// NewAggregator wires an aggregator. A nil clock uses the system time and
// a nil pool runs fan-out queries on a single worker.
func NewAggregator(store *events.Store, engine *sessions.Engine, clock timeframe.TimeProvider, pool *async.Pool, logger *slog.Logger) *Aggregator {
	if clock == nil {
		clock = &timeframe.DefaultTimeProvider{}
	}
	if pool == nil {
		pool = async.NewPool(1)
	}
	return &Aggregator{
		store:  store,
		engine: engine,
		clock:  clock,
		pool:   pool,
		logger: logger,
	}
}

// WithCache serves repeated reports from cache. A nil cache disables it.
func (a *Aggregator) WithCache(cache *reportcache.Cache) *Aggregator {
	a.cache = cache
	return a
}

// Window returns the trailing window a report over days covers right now.
func (a *Aggregator) Window(days int) timeframe.Window {
	if days < 0 {
		days = 0
	}
	return timeframe.TrailingDays(a.clock.Now(time.UTC), days)
}

func (a *Aggregator) filter(window timeframe.Window) events.Filter {
	return events.Between(window.From, window.To)
}

func (a *Aggregator) pageviewFilter(window timeframe.Window) events.Filter {
	f := a.filter(window)
	f.EventName = events.EventPageview
	return f
}

func (a *Aggregator) finish(report string, start time.Time, err error) {
	metrics.ObserveReport(report, start, err)
	if err != nil {
		a.logger.Error("Report failed", slog.String("report", report), slog.Any("error", err))
		return
	}
	a.logger.Debug("Report computed",
		slog.String("report", report),
		slog.Duration("elapsed", time.Since(start)))
}

func ratio(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
