package http_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/analytics"
	"trackly/internal/testsupport"
)

func TestAnalyticsEndpoints(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	// Every event lands earlier today, after UTC midnight.
	now := time.Now().UTC()
	ts := func(offset int) time.Time {
		start := now.Add(-time.Minute)
		if midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC); start.Before(midnight) {
			start = midnight
		}
		return start.Add(time.Duration(offset) * time.Millisecond)
	}

	testsupport.InsertEvent(t, db, "/", ts(0), testsupport.WithTitle("Home"), testsupport.WithSession("s1"), testsupport.WithSource("google"), testsupport.WithCountry("Spain"), testsupport.WithUser("u1"))
	testsupport.InsertEvent(t, db, "/pricing", ts(10), testsupport.WithSession("s1"), testsupport.WithSource("google"), testsupport.WithCountry("Spain"), testsupport.WithUser("u1"))
	testsupport.InsertEvent(t, db, "/", ts(20), testsupport.WithSession("s2"), testsupport.WithCountry("France"), testsupport.WithUser("u2"),
		testsupport.WithReferrer("https://news.ycombinator.com/item?id=1"))

	get := func(t *testing.T, target string, out any) {
		t.Helper()
		status, data := doRequest(t, app, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, status, string(data))
		require.NoError(t, json.Unmarshal(data, out))
	}

	t.Run("daily", func(t *testing.T) {
		var rows []analytics.DailyCount
		get(t, "/analytics/daily/?days=0", &rows)
		require.Len(t, rows, 1)
		assert.Equal(t, now.Format("2006-01-02"), rows[0].Day)
		assert.Equal(t, int64(3), rows[0].Count)
	})

	t.Run("countries", func(t *testing.T) {
		var rows []analytics.CountryViews
		get(t, "/analytics/countries/", &rows)
		require.Len(t, rows, 2)
		assert.Equal(t, "Spain", rows[0].Country)
		assert.Equal(t, int64(2), rows[0].Views)
	})

	t.Run("top pages", func(t *testing.T) {
		var rows []analytics.PagePerformance
		get(t, "/analytics/top-pages/?days=1&limit=5", &rows)
		require.Len(t, rows, 2)
		assert.Equal(t, "Home", rows[0].Page)
		assert.Equal(t, "/", rows[0].Path)
		assert.Equal(t, int64(2), rows[0].Views)
		assert.Equal(t, "/pricing", rows[1].Page)
		assert.Equal(t, 2, rows[0].LandingPage)
		assert.Equal(t, 1, rows[0].ExitPage)
		assert.InDelta(t, 50.0, rows[0].BounceRate, 0.01)
	})

	t.Run("traffic sources end with the overall row", func(t *testing.T) {
		var rows []analytics.SourceStats
		get(t, "/analytics/traffic-sources/", &rows)
		require.Len(t, rows, 3)
		last := rows[len(rows)-1]
		assert.Equal(t, analytics.OverallSource, last.Source)
		assert.Equal(t, int64(2), last.Sessions)
		assert.Equal(t, int64(1), last.Bounces)
	})

	t.Run("page metrics", func(t *testing.T) {
		var metrics analytics.PageMetrics
		get(t, "/analytics/page-metrics/?days=0", &metrics)
		assert.Equal(t, int64(3), metrics.TotalViews)
		assert.Equal(t, int64(2), metrics.UniqueUsers)
		assert.InDelta(t, 1.5, metrics.AvgPerUser, 0.001)
	})

	t.Run("sessions", func(t *testing.T) {
		var metrics analytics.SessionMetrics
		get(t, "/analytics/sessions/", &metrics)
		assert.Equal(t, 2, metrics.TotalSessions)
		assert.Equal(t, 1, metrics.Bounces)
		assert.InDelta(t, 50.0, metrics.BounceRate, 0.01)
	})

	t.Run("referrers", func(t *testing.T) {
		var rows []analytics.ReferrerViews
		get(t, "/analytics/referrers/", &rows)
		require.Len(t, rows, 2)
		assert.Equal(t, "Direct", rows[0].Source)
		assert.Equal(t, int64(2), rows[0].Views)
	})

	t.Run("rejects malformed parameters", func(t *testing.T) {
		tests := []struct {
			target    string
			parameter string
		}{
			{"/analytics/daily/?days=abc", "days"},
			{"/analytics/top-pages/?days=-1", "days"},
			{"/analytics/top-pages/?limit=0", "limit"},
			{"/analytics/sessions/?days=99999", "days"},
			{"/analytics/referrers/?limit=1.5", "limit"},
		}
		for _, tt := range tests {
			status, data := doRequest(t, app, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusBadRequest, status, tt.target)

			var body map[string]string
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, tt.parameter, body["parameter"], tt.target)
		}
	})
}

func TestAnalyticsEmptyStore(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	status, data := doRequest(t, app, http.MethodGet, "/analytics/top-pages/", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(data))

	status, data = doRequest(t, app, http.MethodGet, "/analytics/sessions/", "")
	require.Equal(t, http.StatusOK, status)

	var metrics analytics.SessionMetrics
	require.NoError(t, json.Unmarshal(data, &metrics))
	assert.Zero(t, metrics.TotalSessions)
	assert.Zero(t, metrics.BounceRate)
}

func TestOperationalEndpoints(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("health", func(t *testing.T) {
		status, data := doRequest(t, app, http.MethodGet, "/_health", "")
		require.Equal(t, http.StatusOK, status)

		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "ok", body["db_status"])
	})

	t.Run("hello", func(t *testing.T) {
		status, data := doRequest(t, app, http.MethodGet, "/hello/", "")
		require.Equal(t, http.StatusOK, status)
		assert.JSONEq(t, `{"message":"Hello World"}`, string(data))
	})

	t.Run("metrics", func(t *testing.T) {
		status, data := doRequest(t, app, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(data), "go_goroutines")
	})
}
