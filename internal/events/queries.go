package events

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Fields that grouping primitives accept. Anything else is rejected so
// caller-supplied names never reach SQL text.
const (
	FieldEventName   = "event_name"
	FieldPath        = "path"
	FieldURL         = "url"
	FieldReferrer    = "referrer"
	FieldTitle       = "title"
	FieldUTMSource   = "utm_source"
	FieldUTMMedium   = "utm_medium"
	FieldUTMCampaign = "utm_campaign"
	FieldCountry     = "country"
	FieldRegion      = "region"
	FieldSessionID   = "session_id"
	FieldUserID      = "user_id"
	FieldTimestamp   = "timestamp"
	FieldReceivedAt  = "received_at"
	FieldCreatedAt   = "created_at"

	// FieldDay buckets the client timestamp into a UTC calendar day.
	FieldDay = "day"
	// FieldSessionKey is session_id, or a per-event key when session_id is NULL.
	FieldSessionKey = "session_key"
)

var fieldExpressions = map[string]string{
	FieldEventName:   "event_name",
	FieldPath:        "path",
	FieldURL:         "url",
	FieldReferrer:    "referrer",
	FieldTitle:       "title",
	FieldUTMSource:   "utm_source",
	FieldUTMMedium:   "utm_medium",
	FieldUTMCampaign: "utm_campaign",
	FieldCountry:     "country",
	FieldRegion:      "region",
	FieldSessionID:   "session_id",
	FieldUserID:      "user_id",
	FieldTimestamp:   "timestamp",
	FieldReceivedAt:  "received_at",
	FieldCreatedAt:   "created_at",
	FieldDay:         "strftime('%Y-%m-%d', timestamp)",
	FieldSessionKey:  "COALESCE(session_id, char(31) || 'event:' || id)",
}

// AnonymousSessionPrefix starts the session key of an event stored without a
// session_id. Client session ids may not contain control characters, so such
// keys never collide with a real session.
const AnonymousSessionPrefix = "\x1fevent:"

// AnonymousSessionKey is the session key of the event id when it has no session_id.
func AnonymousSessionKey(id uint) string {
	return AnonymousSessionPrefix + strconv.FormatUint(uint64(id), 10)
}

// ParseAnonymousSessionKey returns the event id behind an anonymous session key.
func ParseAnonymousSessionKey(key string) (uint, bool) {
	rest, ok := strings.CutPrefix(key, AnonymousSessionPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func fieldExpr(field string) (string, error) {
	expr, ok := fieldExpressions[field]
	if !ok {
		return "", fmt.Errorf("unsupported field %q", field)
	}
	return expr, nil
}

// Filter narrows a scan or aggregation. Set fields combine with AND.
type Filter struct {
	ID             uint
	EventName      string
	Path           string
	SessionID      string
	From           *time.Time // inclusive
	To             *time.Time // inclusive
	CountryNotNull bool
	SessionNotNull bool
}

// Between returns a filter bounded by an inclusive timestamp range.
func Between(from, to time.Time) Filter {
	return Filter{From: &from, To: &to}
}

func (f Filter) apply(tx *gorm.DB) *gorm.DB {
	if f.ID != 0 {
		tx = tx.Where("id = ?", f.ID)
	}
	if f.EventName != "" {
		tx = tx.Where("event_name = ?", f.EventName)
	}
	if f.Path != "" {
		tx = tx.Where("path = ?", f.Path)
	}
	if f.SessionID != "" {
		tx = tx.Where("session_id = ?", f.SessionID)
	}
	if f.From != nil {
		tx = tx.Where("timestamp >= ?", f.From.UTC())
	}
	if f.To != nil {
		tx = tx.Where("timestamp <= ?", f.To.UTC())
	}
	if f.CountryNotNull {
		tx = tx.Where("country IS NOT NULL")
	}
	if f.SessionNotNull {
		tx = tx.Where("session_id IS NOT NULL")
	}
	return tx
}

type groupOptions struct {
	orderByKey bool
	limit      int
}

// GroupOption adjusts ordering and size of grouped results.
type GroupOption func(*groupOptions)

// OrderByKey sorts groups ascending by key instead of by count.
func OrderByKey() GroupOption {
	return func(o *groupOptions) { o.orderByKey = true }
}

// Limit caps the number of groups returned.
func Limit(n int) GroupOption {
	return func(o *groupOptions) { o.limit = n }
}

func (o groupOptions) apply(tx *gorm.DB) *gorm.DB {
	if o.orderByKey {
		tx = tx.Order("group_key ASC")
	} else {
		tx = tx.Order("group_count DESC").Order("group_key ASC")
	}
	if o.limit > 0 {
		tx = tx.Limit(o.limit)
	}
	return tx
}

func buildGroupOptions(opts []GroupOption) groupOptions {
	var o groupOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// List returns a page of events in reverse chronological order together
// with the total number of matching events.
func (s *Store) List(ctx context.Context, f Filter, limit, offset int) ([]Event, int64, error) {
	query := f.apply(s.db(ctx).Model(&Event{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeErr("count", err)
	}

	var events []Event
	if err := query.Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, 0, storeErr("list", err)
	}

	return events, total, nil
}

// Each streams matching events in reverse chronological order without
// loading them all. fn must not issue store queries of its own.
func (s *Store) Each(ctx context.Context, f Filter, fn func(Event) error) error {
	tx := s.db(ctx)
	rows, err := f.apply(tx.Model(&Event{})).
		Order("timestamp DESC").Order("id DESC").
		Rows()
	if err != nil {
		return storeErr("scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event Event
		if err := tx.ScanRows(rows, &event); err != nil {
			return storeErr("scan", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	return storeErr("scan", rows.Err())
}

// Count returns the number of events matching f.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	var count int64
	if err := f.apply(s.db(ctx).Model(&Event{})).Count(&count).Error; err != nil {
		return 0, storeErr("count", err)
	}
	return count, nil
}

// CountBy counts events per value of field. Groups are ordered by count
// descending unless OrderByKey is given.
func (s *Store) CountBy(ctx context.Context, field string, f Filter, opts ...GroupOption) ([]GroupCount, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}

	var result []GroupCount
	query := f.apply(s.db(ctx).Model(&Event{})).
		Select(expr + " AS group_key, COUNT(*) AS group_count").
		Group("group_key")
	if err := buildGroupOptions(opts).apply(query).Scan(&result).Error; err != nil {
		return nil, storeErr("count by "+field, err)
	}
	return result, nil
}

// DistinctCount counts distinct non-NULL values of field.
func (s *Store) DistinctCount(ctx context.Context, field string, f Filter) (int64, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := f.apply(s.db(ctx).Model(&Event{})).
		Select("COUNT(DISTINCT " + expr + ")").
		Scan(&count).Error; err != nil {
		return 0, storeErr("distinct count "+field, err)
	}
	return count, nil
}

// DistinctCountBy counts distinct non-NULL values of field per value of groupBy.
func (s *Store) DistinctCountBy(ctx context.Context, field, groupBy string, f Filter, opts ...GroupOption) ([]GroupCount, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}
	groupExpr, err := fieldExpr(groupBy)
	if err != nil {
		return nil, err
	}

	var result []GroupCount
	query := f.apply(s.db(ctx).Model(&Event{})).
		Select(groupExpr + " AS group_key, COUNT(DISTINCT " + expr + ") AS group_count").
		Group("group_key")
	if err := buildGroupOptions(opts).apply(query).Scan(&result).Error; err != nil {
		return nil, storeErr("distinct count "+field+" by "+groupBy, err)
	}
	return result, nil
}

// MaxBy returns the maximum value of field per value of groupBy, ordered by key.
func (s *Store) MaxBy(ctx context.Context, field, groupBy string, f Filter) ([]GroupMax, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}
	groupExpr, err := fieldExpr(groupBy)
	if err != nil {
		return nil, err
	}

	var result []GroupMax
	if err := f.apply(s.db(ctx).Model(&Event{})).
		Select(groupExpr + " AS group_key, MAX(" + expr + ") AS group_max").
		Group("group_key").
		Order("group_key ASC").
		Scan(&result).Error; err != nil {
		return nil, storeErr("max "+field+" by "+groupBy, err)
	}
	return result, nil
}

// FirstValueBy returns, per value of groupBy, the value of field on the
// earliest event (by timestamp, then id) where field is not NULL.
func (s *Store) FirstValueBy(ctx context.Context, field, groupBy string, f Filter) (map[string]string, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}
	groupExpr, err := fieldExpr(groupBy)
	if err != nil {
		return nil, err
	}

	inner := f.apply(s.db(ctx).Model(&Event{})).
		Select(groupExpr + " AS group_key, " + expr + " AS group_value, " +
			"ROW_NUMBER() OVER (PARTITION BY " + groupExpr + " ORDER BY timestamp ASC, id ASC) AS rn").
		Where(expr + " IS NOT NULL")

	var rows []struct {
		GroupKey   *string
		GroupValue string
	}
	if err := s.db(ctx).Table("(?) AS ranked", inner).
		Select("group_key, group_value").
		Where("rn = 1").
		Scan(&rows).Error; err != nil {
		return nil, storeErr("first "+field+" by "+groupBy, err)
	}

	result := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.GroupKey != nil {
			result[*row.GroupKey] = row.GroupValue
		}
	}
	return result, nil
}

// StreamSessionEvents feeds fn the events of f ordered by session key,
// then timestamp, then id. keyField is FieldSessionID or FieldSessionKey.
func (s *Store) StreamSessionEvents(ctx context.Context, f Filter, keyField string, fn func(SessionEvent) error) error {
	if keyField != FieldSessionID && keyField != FieldSessionKey {
		return fmt.Errorf("unsupported session key field %q", keyField)
	}
	keyExpr := fieldExpressions[keyField]
	if keyField == FieldSessionID {
		f.SessionNotNull = true
	}

	rows, err := f.apply(s.db(ctx).Model(&Event{})).
		Select("id, " + keyExpr + " AS session_key, event_name, path, utm_source, timestamp").
		Order("session_key ASC").Order("timestamp ASC").Order("id ASC").
		Rows()
	if err != nil {
		return storeErr("session scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev     SessionEvent
			source sql.NullString
			ts     dbTime
		)
		if err := rows.Scan(&ev.ID, &ev.SessionKey, &ev.EventName, &ev.Path, &source, &ts); err != nil {
			return storeErr("session scan", err)
		}
		if source.Valid {
			value := source.String
			ev.UTMSource = &value
		}
		ev.Timestamp = ts.Time
		if err := fn(ev); err != nil {
			return err
		}
	}
	return storeErr("session scan", rows.Err())
}

// dbTime scans timestamps whether the driver hands back time.Time or text.
type dbTime struct {
	time.Time
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", value)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
