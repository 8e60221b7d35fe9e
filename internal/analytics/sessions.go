package analytics

import (
	"context"
	"fmt"
	"time"

	"trackly/internal/sessions"
)

// sessionMetrics reports session count, bounces, average duration in
// seconds and average pageviews per session for the window.
func (a *Aggregator) sessionMetrics(ctx context.Context, days int) (result *SessionMetrics, err error) {
	start := time.Now()
	defer func() { a.finish("sessions", start, err) }()

	index, err := a.engine.Infer(ctx, a.Window(days))
	if err != nil {
		return nil, fmt.Errorf("error fetching sessions: %w", err)
	}

	var duration time.Duration
	var pages int64
	index.Each(func(s *sessions.Summary) {
		duration += s.Duration()
		pages += int64(s.PageviewCount)
	})

	total := index.Len()
	bounces := index.BounceCount()

	result = &SessionMetrics{
		TotalSessions: total,
		Bounces:       bounces,
		BounceRate:    sessions.Percent(int64(bounces), int64(total)),
		AvgPages:      ratio(pages, int64(total)),
	}
	if total > 0 {
		result.AvgDuration = duration.Seconds() / float64(total)
	}
	return result, nil
}
