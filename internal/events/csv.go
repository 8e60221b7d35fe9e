package events

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
)

// CSVTimeLayout is the timestamp layout written by ExportCSV.
const CSVTimeLayout = "2006-01-02 15:04:05.999999999"

// CSVColumns is the column order used for import and export.
var CSVColumns = []string{
	"event_name", "received_at", "timestamp", "url", "path", "referrer", "title",
	"utm_source", "utm_medium", "utm_campaign", "country", "region", "session_id", "user_id",
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportCSV reads events from r and passes every row through the gate.
// Rows that fail validation are logged and skipped; a store failure aborts.
func ImportCSV(ctx context.Context, gate *Gate, logger *slog.Logger, r io.Reader) (ImportResult, error) {
	var result ImportResult

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("error reading csv header: %w", err)
	}

	fold := cases.Fold()
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[fold.String(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"event_name", "timestamp", "received_at", "url", "path"} {
		if _, ok := columns[required]; !ok {
			return result, fmt.Errorf("csv header is missing column %q", required)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			logger.Warn("Skipping unreadable csv row", slog.Int("line", line), slog.Any("error", err))
			result.Skipped++
			continue
		}

		get := func(column string) string {
			idx, ok := columns[column]
			if !ok || idx >= len(record) {
				return ""
			}
			return record[idx]
		}
		opt := func(column string) *string {
			value := get(column)
			return &value
		}

		payload := Payload{
			EventName:   get("event_name"),
			Timestamp:   get("timestamp"),
			ReceivedAt:  get("received_at"),
			URL:         get("url"),
			Path:        get("path"),
			Referrer:    opt("referrer"),
			Title:       opt("title"),
			UTMSource:   opt("utm_source"),
			UTMMedium:   opt("utm_medium"),
			UTMCampaign: opt("utm_campaign"),
			Country:     opt("country"),
			Region:      opt("region"),
			SessionID:   opt("session_id"),
			UserID:      opt("user_id"),
		}

		if _, err := gate.Accept(ctx, payload, RequestMeta{}); err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				logger.Warn("Skipping invalid csv row", slog.Int("line", line), slog.String("reason", validationErr.Error()))
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("error importing csv line %d: %w", line, err)
		}
		result.Imported++
	}

	logger.Info("CSV import finished",
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// ExportCSV writes every event matching f to w, newest first.
func ExportCSV(ctx context.Context, store *Store, f Filter, w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVColumns); err != nil {
		return 0, fmt.Errorf("error writing csv header: %w", err)
	}

	written := 0
	err := store.Each(ctx, f, func(e Event) error {
		written++
		return writer.Write([]string{
			e.EventName,
			e.ReceivedAt.UTC().Format(CSVTimeLayout),
			e.Timestamp.UTC().Format(CSVTimeLayout),
			e.URL,
			e.Path,
			deref(e.Referrer),
			deref(e.Title),
			deref(e.UTMSource),
			deref(e.UTMMedium),
			deref(e.UTMCampaign),
			deref(e.Country),
			deref(e.Region),
			deref(e.SessionID),
			deref(e.UserID),
		})
	})
	if err != nil {
		return written, fmt.Errorf("error exporting events: %w", err)
	}

	writer.Flush()
	return written, writer.Error()
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
