package visitors_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trackly/internal/testsupport"
	"trackly/internal/visitors"
)

func TestBuildVisitorID(t *testing.T) {
	day := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	host := "example.com"
	ipAddress := "192.168.1.1"
	userAgent := "Mozilla/5.0"
	salt := "test-salt"

	t.Run("generates consistent ID for same inputs within same day", func(t *testing.T) {
		id1 := visitors.BuildVisitorID(day, host, ipAddress, userAgent, salt)
		id2 := visitors.BuildVisitorID(day.Add(10*time.Hour), host, ipAddress, userAgent, salt)

		assert.Equal(t, id1, id2)
		assert.Len(t, id1, 64, "SHA-256 hash should be 64 characters (hex encoded)")
	})

	t.Run("rotates at midnight UTC", func(t *testing.T) {
		id1 := visitors.BuildVisitorID(day, host, ipAddress, userAgent, salt)
		id2 := visitors.BuildVisitorID(day.AddDate(0, 0, 1), host, ipAddress, userAgent, salt)

		assert.NotEqual(t, id1, id2)
	})

	tests := []struct {
		name                    string
		host, ip, agent, salted string
	}{
		{"different IP", host, "192.168.1.2", userAgent, salt},
		{"different user agent", host, ipAddress, "Different Agent", salt},
		{"different host", "different.com", ipAddress, userAgent, salt},
		{"different salt", host, ipAddress, userAgent, "other-salt"},
	}

	base := visitors.BuildVisitorID(day, host, ipAddress, userAgent, salt)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, visitors.BuildVisitorID(day, tt.host, tt.ip, tt.agent, tt.salted))
		})
	}
}

func TestNewIDFunc(t *testing.T) {
	day := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	idFunc := visitors.NewIDFunc("key", testsupport.FixedClock(day))

	assert.Equal(t,
		visitors.BuildVisitorID(day, "example.com", "10.0.0.1", "ua", "key"),
		idFunc("example.com", "10.0.0.1", "ua"))
}
