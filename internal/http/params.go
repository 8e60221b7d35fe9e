package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"

	"trackly/internal/timeframe"
)

// intParam reads an integer query parameter bounded by [min, max]. An absent
// or blank value yields def. Anything else that is not an integer in range
// is a QueryParameterError.
func intParam(ctx *cartridge.Context, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &QueryParameterError{Parameter: name, Message: "must be an integer"}
	}
	if value < min {
		return 0, &QueryParameterError{Parameter: name, Message: fmt.Sprintf("must be at least %d", min)}
	}
	if max > 0 && value > max {
		return 0, &QueryParameterError{Parameter: name, Message: fmt.Sprintf("must be at most %d", max)}
	}
	return value, nil
}

// dateParam reads an optional date bound. Upper bounds given as a plain date
// cover the whole day.
func dateParam(ctx *cartridge.Context, name string, upper bool) (*time.Time, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return nil, nil
	}

	value, err := timeframe.ParseDateBound(raw, upper)
	if err != nil {
		return nil, &QueryParameterError{Parameter: name, Message: "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp"}
	}
	return &value, nil
}
