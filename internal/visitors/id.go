// Package visitors derives anonymous visitor identifiers for events that
// arrive without a user_id.
package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"trackly/internal/events"
)

// BuildVisitorID hashes the site host, client IP and user agent with a
// salt that rotates at midnight UTC, so the same visitor gets a new id
// every day. The IP is never stored, only hashed.
func BuildVisitorID(day time.Time, host, ipAddress, userAgent, salt string) string {
	dailySalt := fmt.Sprintf("%s-%s", day.UTC().Format("2006-01-02"), salt)
	data := fmt.Sprintf("%s.%s.%s.%s", dailySalt, host, ipAddress, userAgent)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// NewIDFunc returns an events.VisitorIDFunc salted with privateKey. now
// supplies the day of the rotation and defaults to time.Now.
func NewIDFunc(privateKey string, now func() time.Time) events.VisitorIDFunc {
	if now == nil {
		now = time.Now
	}
	return func(host, ip, userAgent string) string {
		return BuildVisitorID(now(), host, ip, userAgent, privateKey)
	}
}
