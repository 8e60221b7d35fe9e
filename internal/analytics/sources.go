package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trackly/internal/events"
	"trackly/internal/pkg/async"
	"trackly/internal/pkg/referrers"
	"trackly/internal/sessions"
)

// OverallSource labels the synthetic totals row of TrafficSources.
const OverallSource = "Overall"

// trafficSources reports sessions and bounces per utm_source, ordered by
// sessions descending, followed by an Overall row whose bounce rate is
// recomputed from the summed counts.
func (a *Aggregator) trafficSources(ctx context.Context, days int) (result []SourceStats, err error) {
	start := time.Now()
	defer func() { a.finish("traffic_sources", start, err) }()

	window := a.Window(days)

	data, err := a.pool.Run(ctx, []async.Task{
		{Name: "sources", Execute: func(ctx context.Context) (any, error) {
			return a.engine.SessionsBySource(ctx, window)
		}},
		{Name: "sessions", Execute: func(ctx context.Context) (any, error) {
			return a.engine.Infer(ctx, window)
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching traffic sources: %w", err)
	}

	rows := data["sources"].([]events.GroupCount)
	bounces := data["sessions"].(*sessions.Index).BouncesBySource(events.NotSetLabel)

	result = make([]SourceStats, 0, len(rows)+1)
	for _, row := range rows {
		source := row.KeyOr(events.NotSetLabel)
		bounced := int64(bounces[source])
		result = append(result, SourceStats{
			Source:     source,
			Sessions:   row.Count,
			Bounces:    bounced,
			BounceRate: sessions.Percent(bounced, row.Count),
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Sessions != result[j].Sessions {
			return result[i].Sessions > result[j].Sessions
		}
		return result[i].Source < result[j].Source
	})

	return append(result, overall(result)), nil
}

func overall(rows []SourceStats) SourceStats {
	total := SourceStats{Source: OverallSource}
	for _, row := range rows {
		total.Sessions += row.Sessions
		total.Bounces += row.Bounces
	}
	total.BounceRate = sessions.Percent(total.Bounces, total.Sessions)
	return total
}

// topReferrers groups pageviews by referring site. Referrer URLs are reduced
// to a display name and pageviews without a referrer count as Direct.
func (a *Aggregator) topReferrers(ctx context.Context, days, limit int) (result []ReferrerViews, err error) {
	start := time.Now()
	defer func() { a.finish("referrers", start, err) }()

	rows, err := a.store.CountBy(ctx, events.FieldReferrer, a.pageviewFilter(a.Window(days)))
	if err != nil {
		return nil, fmt.Errorf("error fetching referrers: %w", err)
	}

	views := make(map[string]int64)
	for _, row := range rows {
		source := referrers.SourceFromURL(row.KeyOr(""))
		if source == "" {
			source = events.DirectReferrer
		}
		views[source] += row.Count
	}

	result = make([]ReferrerViews, 0, len(views))
	for source, count := range views {
		result = append(result, ReferrerViews{Source: source, Views: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Views != result[j].Views {
			return result[i].Views > result[j].Views
		}
		return result[i].Source < result[j].Source
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
