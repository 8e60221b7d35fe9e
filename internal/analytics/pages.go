package analytics

import (
	"context"
	"fmt"
	"time"

	"trackly/internal/events"
	"trackly/internal/pkg/async"
	"trackly/internal/sessions"
)

// topPages returns the limit most viewed paths, most views first with ties
// broken by path. Landing and exit counts and the bounce rate come from a
// single session pass over the window.
func (a *Aggregator) topPages(ctx context.Context, days, limit int) (result []PagePerformance, err error) {
	start := time.Now()
	defer func() { a.finish("top_pages", start, err) }()

	window := a.Window(days)
	pageviews := a.pageviewFilter(window)

	views, err := a.store.CountBy(ctx, events.FieldPath, pageviews, events.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("error fetching page views: %w", err)
	}
	if len(views) == 0 {
		return []PagePerformance{}, nil
	}

	data, err := a.pool.Run(ctx, []async.Task{
		{Name: "titles", Execute: func(ctx context.Context) (any, error) {
			return a.store.FirstValueBy(ctx, events.FieldTitle, events.FieldPath, pageviews)
		}},
		{Name: "sessions", Execute: func(ctx context.Context) (any, error) {
			return a.engine.Infer(ctx, window)
		}},
		{Name: "touching", Execute: func(ctx context.Context) (any, error) {
			return a.engine.TouchingSessions(ctx, window)
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching page sessions: %w", err)
	}

	titles := data["titles"].(map[string]string)
	index := data["sessions"].(*sessions.Index)
	touching := data["touching"].(map[string]int64)

	landing := index.LandingCounts()
	exits := index.ExitCounts()

	result = make([]PagePerformance, 0, len(views))
	for _, row := range views {
		path := row.KeyOr("")
		label := path
		if title := titles[path]; title != "" {
			label = title
		}
		result = append(result, PagePerformance{
			Page:        label,
			Path:        path,
			Views:       row.Count,
			LandingPage: landing[path],
			ExitPage:    exits[path],
			BounceRate:  index.BounceRate(path, touching[path]),
		})
	}
	return result, nil
}

// pageMetrics reports total pageviews, distinct users across all events and
// the pages-per-user average overall and per day.
func (a *Aggregator) pageMetrics(ctx context.Context, days int) (result *PageMetrics, err error) {
	start := time.Now()
	defer func() { a.finish("page_metrics", start, err) }()

	window := a.Window(days)
	pageviews := a.pageviewFilter(window)

	data, err := a.pool.Run(ctx, []async.Task{
		{Name: "views", Execute: func(ctx context.Context) (any, error) {
			return a.store.Count(ctx, pageviews)
		}},
		{Name: "users", Execute: func(ctx context.Context) (any, error) {
			return a.store.DistinctCount(ctx, events.FieldUserID, a.filter(window))
		}},
		{Name: "daily_views", Execute: func(ctx context.Context) (any, error) {
			return a.store.CountBy(ctx, events.FieldDay, pageviews, events.OrderByKey())
		}},
		{Name: "daily_users", Execute: func(ctx context.Context) (any, error) {
			return a.store.DistinctCountBy(ctx, events.FieldUserID, events.FieldDay, pageviews, events.OrderByKey())
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching page metrics: %w", err)
	}

	totalViews := data["views"].(int64)
	uniqueUsers := data["users"].(int64)

	usersByDay := make(map[string]int64)
	for _, row := range data["daily_users"].([]events.GroupCount) {
		usersByDay[row.KeyOr("")] = row.Count
	}

	dailyViews := data["daily_views"].([]events.GroupCount)
	trend := make([]TrendPoint, 0, len(dailyViews))
	for _, row := range dailyViews {
		day := row.KeyOr("")
		trend = append(trend, TrendPoint{
			Date:            day,
			AvgPagesPerUser: ratio(row.Count, usersByDay[day]),
		})
	}

	return &PageMetrics{
		TotalViews:  totalViews,
		UniqueUsers: uniqueUsers,
		AvgPerUser:  ratio(totalViews, uniqueUsers),
		Trend:       trend,
	}, nil
}
