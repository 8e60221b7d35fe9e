package services_test

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/config"
	"trackly/internal/services"
	"trackly/internal/testsupport"
)

func TestCloseReleasesSharedResources(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := testsupport.GetLogger()
	cfg := &config.Config{
		GeoDBPath:             filepath.Join(t.TempDir(), "missing.mmdb"),
		RedisAddr:             mr.Addr(),
		ReportCacheTTLSeconds: 60,
	}
	t.Cleanup(func() { _ = services.Close() })

	resolver := services.GeoResolver(cfg, logger)
	assert.Same(t, resolver, services.GeoResolver(cfg, logger))

	cache := services.ReportCache(cfg, logger)
	require.NotNil(t, cache)
	assert.Same(t, cache, services.ReportCache(cfg, logger))

	require.NoError(t, services.Close())
	assert.NoError(t, services.Close(), "closing twice is a no-op")

	assert.NotSame(t, resolver, services.GeoResolver(cfg, logger))
	assert.NotSame(t, cache, services.ReportCache(cfg, logger))
}

func TestReportCacheDisabledWithoutAddress(t *testing.T) {
	cfg := &config.Config{ReportCacheTTLSeconds: 60}
	assert.Nil(t, services.ReportCache(cfg, testsupport.GetLogger()))
}
