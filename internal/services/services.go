// Package services builds the configured ingestion gate and report
// aggregator on top of a database manager.
package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"trackly/internal/analytics"
	"trackly/internal/config"
	"trackly/internal/events"
	"trackly/internal/pkg/async"
	"trackly/internal/pkg/geoip"
	"trackly/internal/pkg/reportcache"
	"trackly/internal/sessions"
	"trackly/internal/visitors"
)

var (
	mu          sync.Mutex
	geoResolver *geoip.Resolver
	queryPool   *async.Pool
	reportCache *reportcache.Cache
)

// GeoResolver returns the process-wide GeoLite2 resolver.
func GeoResolver(cfg *config.Config, logger *slog.Logger) *geoip.Resolver {
	mu.Lock()
	defer mu.Unlock()
	if geoResolver == nil {
		geoResolver = geoip.NewResolver(cfg.GeoDBPath, logger)
	}
	return geoResolver
}

// QueryPool returns the process-wide pool used to fan out report queries.
func QueryPool(cfg *config.Config) *async.Pool {
	mu.Lock()
	defer mu.Unlock()
	if queryPool == nil {
		queryPool = async.NewPool(cfg.QueryWorkers)
	}
	return queryPool
}

// ReportCache returns the process-wide report cache, or nil when no Redis
// address is configured.
func ReportCache(cfg *config.Config, logger *slog.Logger) *reportcache.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	if reportCache == nil {
		client := reportcache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		reportCache = reportcache.New(client, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second, logger)
		logger.Info("Report cache enabled",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("ttl_seconds", cfg.ReportCacheTTLSeconds))
	}
	return reportCache
}

// Close releases the GeoLite2 database and the Redis client. Later calls
// build fresh instances.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	var errs []error
	if geoResolver != nil {
		if err := geoResolver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing geoip database: %w", err))
		}
		geoResolver = nil
	}
	if reportCache != nil {
		if err := reportCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing report cache: %w", err))
		}
		reportCache = nil
	}
	return errors.Join(errs...)
}

// RegisterEventNames adds the configured custom event names to the known set.
func RegisterEventNames(cfg *config.Config) {
	events.RegisterEventNames(cfg.ExtraEventNames...)
}

// NewStore creates an event store over dbManager.
func NewStore(dbManager cartridge.DBManager, logger *slog.Logger) *events.Store {
	return events.NewStore(dbManager, logger)
}

// NewGate creates an ingestion gate with the enrichment cfg enables.
func NewGate(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) *events.Gate {
	var opts events.GateOptions
	if cfg.GeoEnrichment {
		opts.Geo = GeoResolver(cfg, logger)
	}
	if cfg.DeriveVisitorIDs {
		opts.VisitorID = visitors.NewIDFunc(cfg.PrivateKey, nil)
	}
	return events.NewGate(NewStore(dbManager, logger), logger, opts)
}

// NewEngine creates a session engine honouring the configured policy.
func NewEngine(cfg *config.Config, store *events.Store) *sessions.Engine {
	return sessions.NewEngine(store, sessions.Policy(cfg.MissingSessionPolicy))
}

// NewAggregator creates a report aggregator reading the system clock.
func NewAggregator(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) *analytics.Aggregator {
	store := NewStore(dbManager, logger)
	return analytics.NewAggregator(store, NewEngine(cfg, store), nil, QueryPool(cfg), logger).
		WithCache(ReportCache(cfg, logger))
}
