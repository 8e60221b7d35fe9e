package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Store is the durable, append-only event log.
type Store struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates a store backed by the given database manager.
func NewStore(dbManager cartridge.DBManager, logger *slog.Logger) *Store {
	return &Store{
		dbManager: dbManager,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock returns a copy of the store that stamps created_at using now.
func (s *Store) WithClock(now func() time.Time) *Store {
	clone := *s
	clone.now = now
	return &clone
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.dbManager.GetConnection().WithContext(ctx)
}

// Append persists a new event and returns its id. created_at is always
// assigned here; any value supplied by the caller is discarded.
func (s *Store) Append(ctx context.Context, event *Event) (uint, error) {
	event.ID = 0
	event.CreatedAt = s.now()
	event.normalize()

	err := sqlite.PerformWrite(s.logger, s.db(ctx), func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		s.logger.Error("Failed to append event", slog.Any("error", err))
		return 0, storeErr("append", err)
	}

	return event.ID, nil
}

// Get loads a single event by id.
func (s *Store) Get(ctx context.Context, id uint) (*Event, error) {
	var event Event
	if err := s.db(ctx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, storeErr("get", err)
	}
	return &event, nil
}

// Ping checks that the underlying database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.dbManager.GetConnection().DB()
	if err != nil {
		return storeErr("ping", err)
	}
	return storeErr("ping", sqlDB.PingContext(ctx))
}

// DeleteBefore removes up to batchSize events whose timestamp is before
// cutoff and returns how many were removed. It only serves retention.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var deleted int64
	err := sqlite.PerformWrite(s.logger, s.db(ctx), func(tx *gorm.DB) error {
		batch := tx.Model(&Event{}).
			Select("id").
			Where("timestamp < ?", cutoff.UTC()).
			Order("id ASC").
			Limit(batchSize)
		result := tx.Where("id IN (?)", batch).Delete(&Event{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, storeErr("delete", err)
	}
	return deleted, nil
}
