package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/events"
	"trackly/internal/sessions"
	"trackly/internal/testsupport"
	"trackly/internal/timeframe"
)

func TestEngineWindowScoping(t *testing.T) {
	store, dbManager := testsupport.SetupStore(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	day1 := time.Date(2024, 7, 1, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2024, 7, 2, 0, 10, 0, 0, time.UTC)
	testsupport.InsertEvent(t, db, "/a", day1, testsupport.WithSession("S1"))
	testsupport.InsertEvent(t, db, "/b", day2, testsupport.WithSession("S1"))

	engine := sessions.NewEngine(store, sessions.ExcludeMissing)

	lifetime := timeframe.Window{From: day1.Add(-time.Hour), To: day2.Add(time.Hour)}
	onlySecondDay := timeframe.Window{From: timeframe.StartOfDay(day2), To: day2.Add(time.Hour)}

	bounced, err := engine.BouncedSessions(ctx, lifetime)
	require.NoError(t, err)
	assert.Empty(t, bounced)

	bounced, err = engine.BouncedSessions(ctx, onlySecondDay)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"S1": {}}, bounced)

	counts, err := engine.SessionEventCounts(ctx, onlySecondDay)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S1": 1}, counts)

	landing, err := engine.LandingPage(ctx, "S1", onlySecondDay)
	require.NoError(t, err)
	assert.Equal(t, "/b", landing)

	landing, err = engine.LandingPage(ctx, "S1", lifetime)
	require.NoError(t, err)
	assert.Equal(t, "/a", landing)

	exit, err := engine.ExitPage(ctx, "S1", lifetime)
	require.NoError(t, err)
	assert.Equal(t, "/b", exit)

	empty := timeframe.Window{From: day2.Add(2 * time.Hour), To: day2.Add(3 * time.Hour)}
	_, err = engine.LandingPage(ctx, "S1", empty)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestEngineEqualTimestampsResolveByInsertionOrder(t *testing.T) {
	store, dbManager := testsupport.SetupStore(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	ts := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	testsupport.InsertEvent(t, db, "/first", ts, testsupport.WithSession("S1"))
	testsupport.InsertEvent(t, db, "/second", ts, testsupport.WithSession("S1"))

	engine := sessions.NewEngine(store, sessions.ExcludeMissing)
	window := timeframe.Window{From: ts.Add(-time.Hour), To: ts.Add(time.Hour)}

	landing, err := engine.LandingPage(ctx, "S1", window)
	require.NoError(t, err)
	assert.Equal(t, "/first", landing)

	exit, err := engine.ExitPage(ctx, "S1", window)
	require.NoError(t, err)
	assert.Equal(t, "/second", exit)
}

func TestEngineMissingSessionPolicy(t *testing.T) {
	store, dbManager := testsupport.SetupStore(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	ts := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	testsupport.InsertEvent(t, db, "/a", ts, testsupport.WithSession("S1"))
	testsupport.InsertEvent(t, db, "/b", ts.Add(time.Minute), testsupport.WithSession("S1"))
	testsupport.InsertEvent(t, db, "/a", ts.Add(2*time.Minute))
	testsupport.InsertEvent(t, db, "/a", ts.Add(3*time.Minute))

	window := timeframe.Window{From: ts.Add(-time.Hour), To: ts.Add(time.Hour)}

	t.Run("exclude ignores anonymous events", func(t *testing.T) {
		engine := sessions.NewEngine(store, sessions.ExcludeMissing)

		index, err := engine.Infer(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, 1, index.Len())
		assert.Equal(t, 0, index.BounceCount())

		rate, err := engine.BounceRate(ctx, "/a", window)
		require.NoError(t, err)
		assert.Equal(t, 0.0, rate)
	})

	t.Run("singleton makes each anonymous event a bounce", func(t *testing.T) {
		engine := sessions.NewEngine(store, sessions.SingletonMissing)

		index, err := engine.Infer(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, 3, index.Len())
		assert.Equal(t, 2, index.BounceCount())

		rate, err := engine.BounceRate(ctx, "/a", window)
		require.NoError(t, err)
		assert.InDelta(t, 66.666, rate, 0.01)

		touching, err := engine.TouchingSessions(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"/a": 3, "/b": 1}, touching)
	})

	t.Run("unknown policy falls back to exclude", func(t *testing.T) {
		engine := sessions.NewEngine(store, sessions.Policy("whatever"))
		assert.Equal(t, sessions.ExcludeMissing, engine.Policy())
	})
}

func TestEngineAnonymousSessionsStayApart(t *testing.T) {
	store, dbManager := testsupport.SetupStore(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	ts := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	anonymous := testsupport.InsertEvent(t, db, "/a", ts)
	testsupport.InsertEvent(t, db, "/b", ts.Add(time.Minute), testsupport.WithSession("event:1"))
	testsupport.InsertEvent(t, db, "/c", ts.Add(2*time.Minute), testsupport.WithSession("event:1"))

	window := timeframe.Window{From: ts.Add(-time.Hour), To: ts.Add(time.Hour)}
	anonymousKey := events.AnonymousSessionKey(anonymous.ID)

	t.Run("singleton keeps the anonymous event on its own", func(t *testing.T) {
		engine := sessions.NewEngine(store, sessions.SingletonMissing)

		counts, err := engine.SessionEventCounts(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{anonymousKey: 1, "event:1": 2}, counts)

		bounced, err := engine.BouncedSessions(ctx, window)
		require.NoError(t, err)
		assert.Equal(t, map[string]struct{}{anonymousKey: {}}, bounced)

		landing, err := engine.LandingPage(ctx, anonymousKey, window)
		require.NoError(t, err)
		assert.Equal(t, "/a", landing)

		exit, err := engine.ExitPage(ctx, "event:1", window)
		require.NoError(t, err)
		assert.Equal(t, "/c", exit)
	})

	t.Run("exclude does not resolve anonymous keys", func(t *testing.T) {
		engine := sessions.NewEngine(store, sessions.ExcludeMissing)

		_, err := engine.LandingPage(ctx, anonymousKey, window)
		assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})
}

func TestEngineBounceRateWithoutSessions(t *testing.T) {
	store, _ := testsupport.SetupStore(t)
	engine := sessions.NewEngine(store, sessions.ExcludeMissing)

	window := timeframe.TrailingDays(time.Now(), 7)
	rate, err := engine.BounceRate(context.Background(), "/nowhere", window)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}
