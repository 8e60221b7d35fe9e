package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackRouteRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	var trackRoute *fiber.Route
	for idx := range routes {
		route := routes[idx]
		if route.Method == fiber.MethodPost && route.Path == "/track/" {
			trackRoute = &routes[idx]
			break
		}
	}

	require.NotNil(t, trackRoute, "expected track route to be registered")

	// Outside production the limiter is wrapped in a pass-through closure
	// defined in MountAppRoutes.
	hasRateLimiter := false
	var handlerNames []string
	for _, handler := range trackRoute.Handlers {
		name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
		handlerNames = append(handlerNames, name)
		if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
			hasRateLimiter = true
			break
		}
	}

	require.Truef(t, hasRateLimiter, "expected rate limiter middleware for track route, handlers: %v", handlerNames)
}

func TestReportRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})

	registered := map[string]bool{}
	for _, route := range srv.App.GetRoutes(true) {
		if route.Method == fiber.MethodGet {
			registered[route.Path] = true
		}
	}

	for _, path := range []string{
		"/_health",
		"/events/",
		"/events/:id/",
		"/analytics/daily/",
		"/analytics/countries/",
		"/analytics/top-pages/",
		"/analytics/traffic-sources/",
		"/analytics/page-metrics/",
		"/analytics/sessions/",
		"/analytics/referrers/",
	} {
		assert.Truef(t, registered[path], "expected GET %s to be registered", path)
	}
}
