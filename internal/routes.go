package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"trackly/internal/config"
	"trackly/internal/http"
)

// publicCORSConfig is shared by every endpoint browsers call cross-origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting only applies in production; it would interfere with tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	ingestionRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(cfg.RateLimitPerMinute),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Tracking is called by browsers on other origins and by server-side
	// clients that never send Sec-Fetch-Site.
	ingestionConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		CustomMiddleware:   []fiber.Handler{ingestionRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	apiConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === OPERATIONS ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)
	srv.Get("/metrics", http.MetricsAction, apiConfig)
	srv.Get("/hello/", http.HelloAction, apiConfig)

	// === INGESTION ===
	srv.Post("/track/", http.TrackCreateAction, ingestionConfig)
	srv.Options("/track/", noContent, ingestionConfig)

	// === EVENTS ===
	srv.Get("/events/", http.EventsIndexAction, apiConfig)
	srv.Post("/events/", http.TrackCreateAction, ingestionConfig)
	srv.Options("/events/", noContent, ingestionConfig)
	srv.Get("/events/:id/", http.EventShowAction, apiConfig)

	// === ANALYTICS ===
	srv.Get("/analytics/daily/", http.AnalyticsDailyAction, apiConfig)
	srv.Get("/analytics/countries/", http.AnalyticsCountriesAction, apiConfig)
	srv.Get("/analytics/top-pages/", http.AnalyticsTopPagesAction, apiConfig)
	srv.Get("/analytics/traffic-sources/", http.AnalyticsTrafficSourcesAction, apiConfig)
	srv.Get("/analytics/page-metrics/", http.AnalyticsPageMetricsAction, apiConfig)
	srv.Get("/analytics/sessions/", http.AnalyticsSessionsAction, apiConfig)
	srv.Get("/analytics/referrers/", http.AnalyticsReferrersAction, apiConfig)
}
