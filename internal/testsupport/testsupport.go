package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trackly/internal"
	"trackly/internal/config"
	"trackly/internal/events"
)

func init() {
	if os.Getenv("TRACKLY_ENV") == "" {
		os.Setenv("TRACKLY_ENV", config.Test)
	}
}

// testDBCache caches test databases by root test name so repeated calls
// within one test share a database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a named in-memory database with the events table migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&events.Event{}); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()

	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set TRACKLY_ENV=test", cfg.Environment)
	}

	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// SetupStore returns an event store over a fresh test database.
func SetupStore(t *testing.T) (*events.Store, *TestDBManager) {
	t.Helper()
	dbManager, logger := SetupTestDBManager(t)
	return events.NewStore(dbManager, logger), dbManager
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables)

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// Str returns a pointer to s.
func Str(s string) *string {
	return &s
}

// EventOption customizes an event built by InsertEvent.
type EventOption func(*events.Event)

// WithSession sets session_id.
func WithSession(id string) EventOption {
	return func(e *events.Event) { e.SessionID = Str(id) }
}

// WithUser sets user_id.
func WithUser(id string) EventOption {
	return func(e *events.Event) { e.UserID = Str(id) }
}

// WithName sets event_name.
func WithName(name string) EventOption {
	return func(e *events.Event) { e.EventName = name }
}

// WithSource sets utm_source.
func WithSource(source string) EventOption {
	return func(e *events.Event) { e.UTMSource = Str(source) }
}

// WithCountry sets country.
func WithCountry(country string) EventOption {
	return func(e *events.Event) { e.Country = Str(country) }
}

// WithTitle sets title.
func WithTitle(title string) EventOption {
	return func(e *events.Event) { e.Title = Str(title) }
}

// WithReferrer sets referrer.
func WithReferrer(referrer string) EventOption {
	return func(e *events.Event) { e.Referrer = Str(referrer) }
}

// InsertEvent writes a pageview for path at ts directly into the database
// and returns it with its id populated.
func InsertEvent(t *testing.T, db *gorm.DB, path string, ts time.Time, opts ...EventOption) events.Event {
	t.Helper()

	event := events.Event{
		EventName:  events.EventPageview,
		CreatedAt:  time.Now().UTC(),
		Timestamp:  ts.UTC(),
		ReceivedAt: ts.UTC(),
		URL:        "https://example.com" + path,
		Path:       path,
	}
	for _, opt := range opts {
		opt(&event)
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

// FixedClock returns a clock function frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
