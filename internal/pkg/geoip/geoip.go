package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var countries = gountries.New()

// Resolver maps client IPs to a country name and region using a GeoLite2
// City database. The database is opened on first use. A missing or
// unreadable database disables lookups without failing ingestion.
type Resolver struct {
	path   string
	logger *slog.Logger

	once   sync.Once
	mu     sync.RWMutex
	reader *geoip2.Reader
}

// NewResolver creates a resolver for the database at path.
func NewResolver(path string, logger *slog.Logger) *Resolver {
	return &Resolver{path: path, logger: logger}
}

func (r *Resolver) open() *geoip2.Reader {
	if r.path == "" {
		r.logger.Debug("GeoIP database path not configured - geo enrichment disabled")
		return nil
	}

	fileInfo, err := os.Stat(r.path)
	if os.IsNotExist(err) {
		r.logger.Info("GeoLite2 database not found - geo enrichment disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		r.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		r.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	r.logger.Info("GeoLite2 database initialized",
		slog.String("path", r.path),
		slog.Int64("size_bytes", fileInfo.Size()),
		slog.String("db_type", db.Metadata().DatabaseType))
	return db
}

func (r *Resolver) db() *geoip2.Reader {
	r.once.Do(func() {
		reader := r.open()
		r.mu.Lock()
		r.reader = reader
		r.mu.Unlock()
	})
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reader
}

// Available reports whether lookups can be served.
func (r *Resolver) Available() bool {
	return r.db() != nil
}

// Lookup returns the country common name and first subdivision for ip.
// ok is false when the IP is invalid, private to the database, or no
// database is loaded.
func (r *Resolver) Lookup(ipAddress string) (country, region string, ok bool) {
	db := r.db()
	if db == nil {
		return "", "", false
	}

	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		r.logger.Debug("Failed to parse IP address", slog.String("ip_address", ipAddress))
		return "", "", false
	}

	record, err := db.City(ip)
	if err != nil {
		r.logger.Warn("Error looking up location for IP",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return "", "", false
	}

	isoCode := record.Country.IsoCode
	if isoCode == "" || isoCode == "--" {
		return "", "", false
	}

	if len(record.Subdivisions) > 0 {
		region = record.Subdivisions[0].Names["en"]
	}
	return CountryName(isoCode), region, true
}

// Close releases the database.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}

// CountryName converts an ISO 3166 alpha-2 code to the country's common
// name, falling back to the upper-cased code when it is unknown.
func CountryName(isoCode string) string {
	country, err := countries.FindCountryByAlpha(isoCode)
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(isoCode)
	}
	return country.Name.Common
}
