// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Missing session policies decide what happens to events that arrive without
// a session_id when session-scoped reports are computed.
const (
	MissingSessionExclude   = "exclude"
	MissingSessionSingleton = "singleton"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Background jobs
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// EventRetentionDays of 0 keeps events forever.
	EventRetentionDays int `mapstructure:"eventretentiondays"`

	// Ingestion
	ExtraEventNames    []string `mapstructure:"eventnames"`
	DeriveVisitorIDs   bool     `mapstructure:"derivevisitorids"`
	GeoEnrichment      bool     `mapstructure:"geoenrichment"`
	RateLimitPerMinute int      `mapstructure:"ratelimitperminute"`

	// Reporting
	MissingSessionPolicy string `mapstructure:"missingsessionpolicy"`
	DefaultDailyDays     int    `mapstructure:"defaultdailydays"`
	DefaultReportDays    int    `mapstructure:"defaultreportdays"`
	DefaultTopLimit      int    `mapstructure:"defaulttoplimit"`
	MaxWindowDays        int    `mapstructure:"maxwindowdays"`
	MaxLimit             int    `mapstructure:"maxlimit"`
	QueryWorkers         int    `mapstructure:"queryworkers"`

	// Report cache. An empty address disables caching.
	RedisAddr             string `mapstructure:"redisaddr"`
	RedisPassword         string `mapstructure:"redispassword"`
	RedisDB               int    `mapstructure:"redisdb"`
	ReportCacheTTLSeconds int    `mapstructure:"reportcachettlseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "trackly")
		v.SetDefault("appport", "8000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("jobintervalseconds", 3600)
		v.SetDefault("eventretentiondays", 0)
		v.SetDefault("eventnames", []string{})
		v.SetDefault("derivevisitorids", false)
		v.SetDefault("geoenrichment", true)
		v.SetDefault("ratelimitperminute", 120)
		v.SetDefault("missingsessionpolicy", MissingSessionExclude)
		v.SetDefault("defaultdailydays", 7)
		v.SetDefault("defaultreportdays", 30)
		v.SetDefault("defaulttoplimit", 10)
		v.SetDefault("maxwindowdays", 3650)
		v.SetDefault("maxlimit", 1000)
		v.SetDefault("queryworkers", 4)
		v.SetDefault("redisaddr", "")
		v.SetDefault("redispassword", "")
		v.SetDefault("redisdb", 0)
		v.SetDefault("reportcachettlseconds", 60)

		v.BindEnv("appname", "TRACKLY_APP_NAME")
		v.BindEnv("appport", "TRACKLY_APP_PORT")
		v.BindEnv("environment", "TRACKLY_ENV")
		v.BindEnv("loglevel", "TRACKLY_LOG_LEVEL")
		v.BindEnv("privatekey", "TRACKLY_PRIVATE_KEY")
		v.BindEnv("storagepath", "TRACKLY_STORAGE_PATH")
		v.BindEnv("geodbpath", "TRACKLY_GEO_DB_PATH")
		v.BindEnv("publicdir", "TRACKLY_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "TRACKLY_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "TRACKLY_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "TRACKLY_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "TRACKLY_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "TRACKLY_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "TRACKLY_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "TRACKLY_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "TRACKLY_DB_MAX_IDLE_CONNS")
		v.BindEnv("jobintervalseconds", "TRACKLY_JOB_INTERVAL_SECONDS")
		v.BindEnv("eventretentiondays", "TRACKLY_EVENT_RETENTION_DAYS")
		v.BindEnv("eventnames", "TRACKLY_EVENT_NAMES")
		v.BindEnv("derivevisitorids", "TRACKLY_DERIVE_VISITOR_IDS")
		v.BindEnv("geoenrichment", "TRACKLY_GEO_ENRICHMENT")
		v.BindEnv("ratelimitperminute", "TRACKLY_RATE_LIMIT_PER_MINUTE")
		v.BindEnv("missingsessionpolicy", "TRACKLY_MISSING_SESSION_POLICY")
		v.BindEnv("defaultdailydays", "TRACKLY_DEFAULT_DAILY_DAYS")
		v.BindEnv("defaultreportdays", "TRACKLY_DEFAULT_REPORT_DAYS")
		v.BindEnv("defaulttoplimit", "TRACKLY_DEFAULT_TOP_LIMIT")
		v.BindEnv("maxwindowdays", "TRACKLY_MAX_WINDOW_DAYS")
		v.BindEnv("maxlimit", "TRACKLY_MAX_LIMIT")
		v.BindEnv("queryworkers", "TRACKLY_QUERY_WORKERS")
		v.BindEnv("redisaddr", "TRACKLY_REDIS_ADDR")
		v.BindEnv("redispassword", "TRACKLY_REDIS_PASSWORD")
		v.BindEnv("redisdb", "TRACKLY_REDIS_DB")
		v.BindEnv("reportcachettlseconds", "TRACKLY_REPORT_CACHE_TTL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique TRACKLY_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.DatabaseType != SQLiteDatabase {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	switch c.MissingSessionPolicy {
	case MissingSessionExclude, MissingSessionSingleton:
	default:
		return fmt.Errorf("invalid missing session policy: %s", c.MissingSessionPolicy)
	}

	if c.RedisAddr != "" && c.ReportCacheTTLSeconds <= 0 {
		return fmt.Errorf("report cache ttl must be positive, got %d", c.ReportCacheTTLSeconds)
	}

	if c.EventRetentionDays < 0 {
		return fmt.Errorf("event retention days cannot be negative: %d", c.EventRetentionDays)
	}

	for name, value := range map[string]int{
		"defaultdailydays":   c.DefaultDailyDays,
		"defaultreportdays":  c.DefaultReportDays,
		"defaulttoplimit":    c.DefaultTopLimit,
		"maxwindowdays":      c.MaxWindowDays,
		"maxlimit":           c.MaxLimit,
		"queryworkers":       c.QueryWorkers,
		"jobintervalseconds": c.JobIntervalSeconds,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the secret used for signing (implements cartridge.FactoryConfig interface).
// Visitor id derivation salts its hashes with the same key.
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the MaxOpenConns value. An explicit setting wins;
// otherwise tests get 1 and everything else 10 so report fan-out can read in parallel.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

// GetMaxIdleConns returns the MaxIdleConns value, mirroring GetMaxOpenConns.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// RetentionEnabled reports whether old events should be purged.
func (c *Config) RetentionEnabled() bool {
	return c.EventRetentionDays > 0
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
