package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/config"
	"trackly/internal/events"
	"trackly/internal/jobs"
	"trackly/internal/testsupport"
)

var now = time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

func TestRetentionJob(t *testing.T) {
	store, dbManager := testsupport.SetupStore(t)
	db := dbManager.GetConnection()
	logger := testsupport.GetLogger()
	ctx := context.Background()

	countEvents := func() int64 {
		var count int64
		require.NoError(t, db.Model(&events.Event{}).Count(&count).Error)
		return count
	}

	testsupport.InsertEvent(t, db, "/old", now.AddDate(0, 0, -40))
	testsupport.InsertEvent(t, db, "/edge", now.AddDate(0, 0, -30))
	testsupport.InsertEvent(t, db, "/recent", now.Add(-time.Hour))

	t.Run("disabled retention keeps everything", func(t *testing.T) {
		job := jobs.NewRetentionJob(store, logger, &config.Config{}).WithClock(testsupport.FixedClock(now))

		deleted, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, deleted)
		assert.Equal(t, int64(3), countEvents())
	})

	t.Run("removes events older than the window", func(t *testing.T) {
		job := jobs.NewRetentionJob(store, logger, &config.Config{EventRetentionDays: 30}).WithClock(testsupport.FixedClock(now))
		assert.Equal(t, now.AddDate(0, 0, -30), job.Cutoff())

		deleted, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		var paths []string
		require.NoError(t, db.Model(&events.Event{}).Order("path").Pluck("path", &paths).Error)
		assert.Equal(t, []string{"/edge", "/recent"}, paths)
	})

	t.Run("deletes across several batches", func(t *testing.T) {
		old := now.AddDate(-1, 0, 0)
		batch := make([]events.Event, 0, 1500)
		for i := 0; i < 1500; i++ {
			batch = append(batch, events.Event{
				EventName:  events.EventPageview,
				CreatedAt:  old,
				Timestamp:  old,
				ReceivedAt: old,
				URL:        "https://example.com/archive",
				Path:       "/archive",
			})
		}
		require.NoError(t, db.CreateInBatches(batch, 250).Error)

		job := jobs.NewRetentionJob(store, logger, &config.Config{EventRetentionDays: 30}).WithClock(testsupport.FixedClock(now))
		deleted, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1500), deleted)
		assert.Equal(t, int64(2), countEvents())
	})
}

func TestSchedulerWithoutRetention(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	scheduler := jobs.NewScheduler(dbManager, logger, &config.Config{JobIntervalSeconds: 3600})
	require.NoError(t, scheduler.Start())
	assert.False(t, scheduler.IsRunning())
	assert.NoError(t, scheduler.RunRetention())
	scheduler.Stop()
}
