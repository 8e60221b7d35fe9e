package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date-only format accepted for range bounds.
const DateLayout = "2006-01-02"

// ParseDateBound parses a range bound given either as a calendar date or
// as an RFC 3339 instant. A date-only upper bound covers its whole day.
func ParseDateBound(value string, upper bool) (time.Time, error) {
	value = strings.TrimSpace(value)

	if t, err := time.Parse(DateLayout, value); err == nil {
		if upper {
			return EndOfDay(t), nil
		}
		return t.UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", value)
}
