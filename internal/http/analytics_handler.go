package http

import (
	"github.com/karloscodes/cartridge"

	"trackly/internal/config"
	"trackly/internal/services"
)

func daysParam(ctx *cartridge.Context, def int) (int, error) {
	return intParam(ctx, "days", def, 0, config.GetConfig().MaxWindowDays)
}

func limitParam(ctx *cartridge.Context) (int, error) {
	cfg := config.GetConfig()
	return intParam(ctx, "limit", cfg.DefaultTopLimit, 1, cfg.MaxLimit)
}

// AnalyticsDailyAction returns event counts per day.
func AnalyticsDailyAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	days, err := daysParam(ctx, cfg.DefaultDailyDays)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := services.NewAggregator(cfg, ctx.DBManager, ctx.Logger).
		DailyEventCounts(ctx.UserContext(), ctx.Query("event_name"), days)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}

// AnalyticsCountriesAction returns pageviews per country.
func AnalyticsCountriesAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	days, err := daysParam(ctx, cfg.DefaultReportDays)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := services.NewAggregator(cfg, ctx.DBManager, ctx.Logger).
		PageviewsByCountry(ctx.UserContext(), days)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}

// AnalyticsTopPagesAction returns the most viewed pages with session facts.
func AnalyticsTopPagesAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	days, err := daysParam(ctx, cfg.DefaultReportDays)
	if err != nil {
		return respondError(ctx, err)
	}
	limit, err := limitParam(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := services.NewAggregator(cfg, ctx.DBManager, ctx.Logger).
		TopPages(ctx.UserContext(), days, limit)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}

// AnalyticsTrafficSourcesAction returns sessions and bounces per utm_source.
func AnalyticsTrafficSourcesAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	days, err := daysParam(ctx, cfg.DefaultDailyDays)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := services.NewAggregator(cfg, ctx.DBManager, ctx.Logger).
		TrafficSources(ctx.UserContext(), days)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}

// AnalyticsPageMetricsAction returns pages-per-user metrics.
func AnalyticsPageMetricsAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	days, err := daysParam(ctx, cfg.DefaultDailyDays)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := services.NewAggregator(cfg, ctx.DBManager, ctx.Logger).
		PageMetrics(ctx.UserContext(), days)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}

// AnalyticsSessionsAction returns session totals.
func AnalyticsSessionsAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	days, err := daysParam(ctx, cfg.DefaultReportDays)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := services.NewAggregator(cfg, ctx.DBManager, ctx.Logger).
		SessionMetrics(ctx.UserContext(), days)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}

// AnalyticsReferrersAction returns pageviews per referring site.
func AnalyticsReferrersAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	days, err := daysParam(ctx, cfg.DefaultReportDays)
	if err != nil {
		return respondError(ctx, err)
	}
	limit, err := limitParam(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := services.NewAggregator(cfg, ctx.DBManager, ctx.Logger).
		TopReferrers(ctx.UserContext(), days, limit)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}
