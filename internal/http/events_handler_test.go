package http_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trackly/internal/events"
	"trackly/internal/testsupport"
)

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&events.Event{}).Count(&count).Error)
	return count
}

func TestTrackCreateAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("accepts a valid pageview", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		body := `{
			"event_name": "pageview",
			"timestamp": "2024-07-01T10:00:00+02:00",
			"received_at": "2024-07-01T08:00:01Z",
			"url": "https://example.com/pricing?utm_source=google",
			"path": "/pricing",
			"title": "Pricing",
			"utm_source": "google",
			"session_id": "s-1"
		}`

		status, data := doRequest(t, app, http.MethodPost, "/track/", body)
		require.Equal(t, http.StatusCreated, status, string(data))

		var created events.Event
		require.NoError(t, json.Unmarshal(data, &created))
		assert.NotZero(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Equal(t, "/pricing", created.Path)
		assert.True(t, created.Timestamp.Equal(time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)))
		require.NotNil(t, created.SessionID)
		assert.Equal(t, "s-1", *created.SessionID)
		assert.Equal(t, int64(1), countEvents(t, db))
	})

	t.Run("events endpoint accepts posts too", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		body := `{"event_name":"click","timestamp":"2024-07-01T10:00:00Z","received_at":"2024-07-01T10:00:00Z","url":"https://example.com/","path":"/"}`

		status, data := doRequest(t, app, http.MethodPost, "/events/", body)
		require.Equal(t, http.StatusCreated, status, string(data))
		assert.Equal(t, int64(1), countEvents(t, db))
	})

	t.Run("rejects a missing timestamp without storing", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		body := `{"event_name":"pageview","received_at":"2024-07-01T10:00:00Z","url":"https://example.com/","path":"/"}`

		status, data := doRequest(t, app, http.MethodPost, "/track/", body)
		require.Equal(t, http.StatusBadRequest, status)

		var fields map[string]string
		require.NoError(t, json.Unmarshal(data, &fields))
		assert.Contains(t, fields, "timestamp")
		assert.Zero(t, countEvents(t, db))
	})

	t.Run("rejects a body that is not an object", func(t *testing.T) {
		status, data := doRequest(t, app, http.MethodPost, "/track/", `[1, 2`)
		require.Equal(t, http.StatusBadRequest, status)

		var fields map[string]string
		require.NoError(t, json.Unmarshal(data, &fields))
		assert.Contains(t, fields, "body")
	})

	t.Run("reports a mistyped timestamp under its field", func(t *testing.T) {
		body := `{
			"event_name": "pageview",
			"timestamp": 1719828000,
			"received_at": "2024-07-01T08:00:01Z",
			"url": "https://example.com/",
			"path": "/"
		}`
		status, data := doRequest(t, app, http.MethodPost, "/track/", body)
		require.Equal(t, http.StatusBadRequest, status)

		var fields map[string]string
		require.NoError(t, json.Unmarshal(data, &fields))
		assert.Contains(t, fields, "timestamp")
		assert.NotContains(t, fields, "body")
	})

		t.Run("answers preflight", func(t *testing.T) {
		status, _ := doRequest(t, app, http.MethodOptions, "/track/", "")
		assert.Less(t, status, 300)
	})
}

func TestEventShowAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	stored := testsupport.InsertEvent(t, db, "/docs", time.Now().Add(-time.Hour),
		testsupport.WithSession("s-9"),
		testsupport.WithTitle("Docs"))

	t.Run("round trips a stored event", func(t *testing.T) {
		status, data := doRequest(t, app, http.MethodGet, fmt.Sprintf("/events/%d/", stored.ID), "")
		require.Equal(t, http.StatusOK, status)

		var got events.Event
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, stored.ID, got.ID)
		assert.Equal(t, stored.Path, got.Path)
		assert.Equal(t, stored.URL, got.URL)
		assert.True(t, stored.Timestamp.Equal(got.Timestamp))
		require.NotNil(t, got.Title)
		assert.Equal(t, "Docs", *got.Title)
		assert.Nil(t, got.Country)
	})

	for _, target := range []string{"/events/99999/", "/events/abc/", "/events/0/"} {
		t.Run("not found "+target, func(t *testing.T) {
			status, data := doRequest(t, app, http.MethodGet, target, "")
			require.Equal(t, http.StatusNotFound, status)
			assert.JSONEq(t, `{"error":"Event not found"}`, string(data))
		})
	}
}

func TestEventsIndexAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	base := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	testsupport.InsertEvent(t, db, "/a", base)
	testsupport.InsertEvent(t, db, "/b", base.Add(time.Hour))
	testsupport.InsertEvent(t, db, "/a", base.AddDate(0, 0, 1), testsupport.WithName(events.EventClick))
	testsupport.InsertEvent(t, db, "/c", base.AddDate(0, 0, 3))

	list := func(t *testing.T, query string) EventList {
		t.Helper()
		status, data := doRequest(t, app, http.MethodGet, "/events/"+query, "")
		require.Equal(t, http.StatusOK, status, string(data))

		var resp EventList
		require.NoError(t, json.Unmarshal(data, &resp))
		return resp
	}

	t.Run("newest first", func(t *testing.T) {
		resp := list(t, "")
		assert.Equal(t, int64(4), resp.Count)
		require.Len(t, resp.Results, 4)
		assert.Equal(t, "/c", resp.Results[0].Path)
	})

	t.Run("filters by name and path", func(t *testing.T) {
		resp := list(t, "?event_name=pageview&path=/a")
		assert.Equal(t, int64(1), resp.Count)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, events.EventPageview, resp.Results[0].EventName)
	})

	t.Run("inclusive date range", func(t *testing.T) {
		resp := list(t, "?start_date=2024-07-01&end_date=2024-07-02")
		assert.Equal(t, int64(3), resp.Count)
	})

	t.Run("paginates", func(t *testing.T) {
		resp := list(t, "?page=2&page_size=3")
		assert.Equal(t, int64(4), resp.Count)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "/a", resp.Results[0].Path)
	})

	t.Run("empty page keeps an array", func(t *testing.T) {
		status, data := doRequest(t, app, http.MethodGet, "/events/?page=9", "")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(data), `"results":[]`)

		status, data = doRequest(t, app, http.MethodGet, "/events/?page=184467440737095516", "")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(data), `"results":[]`)
	})

	t.Run("rejects bad parameters", func(t *testing.T) {
		tests := []struct {
			query     string
			parameter string
		}{
			{"?page=zero", "page"},
			{"?page=9223372036854775807", "page"},
			{"?page_size=0", "page_size"},
			{"?page_size=100000", "page_size"},
			{"?start_date=yesterday", "start_date"},
		}
		for _, tt := range tests {
			status, data := doRequest(t, app, http.MethodGet, "/events/"+tt.query, "")
			require.Equal(t, http.StatusBadRequest, status, tt.query)

			var body map[string]string
			require.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, tt.parameter, body["parameter"], tt.query)
			assert.NotEmpty(t, body["error"])
		}
	})
}

// EventList mirrors the listing response shape.
type EventList struct {
	Count   int64          `json:"count"`
	Results []events.Event `json:"results"`
}
