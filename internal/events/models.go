package events

import "time"

// Event is a single behavioral record emitted by a client. Events are
// append-only: the store creates and reads them, nothing updates them.
type Event struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventName   string    `gorm:"index;size:64;not null" json:"event_name"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	Timestamp   time.Time `gorm:"index;not null" json:"timestamp"`
	ReceivedAt  time.Time `gorm:"not null" json:"received_at"`
	URL         string    `gorm:"column:url;size:2048;not null" json:"url"`
	Path        string    `gorm:"index;size:2048;not null" json:"path"`
	Referrer    *string   `gorm:"size:2048" json:"referrer"`
	Title       *string   `gorm:"size:512" json:"title"`
	UTMSource   *string   `gorm:"column:utm_source;index;size:255" json:"utm_source"`
	UTMMedium   *string   `gorm:"column:utm_medium;size:255" json:"utm_medium"`
	UTMCampaign *string   `gorm:"column:utm_campaign;size:255" json:"utm_campaign"`
	Country     *string   `gorm:"index;size:100" json:"country"`
	Region      *string   `gorm:"size:100" json:"region"`
	SessionID   *string   `gorm:"index;size:255" json:"session_id"`
	UserID      *string   `gorm:"index;size:255" json:"user_id"`
}

// TableName pins the table name used by raw report queries.
func (Event) TableName() string {
	return "events"
}

// normalize converts every instant to UTC. Stored timestamps must share a
// zone so that textual comparison and strftime bucketing stay correct.
func (e *Event) normalize() {
	e.Timestamp = e.Timestamp.UTC()
	e.ReceivedAt = e.ReceivedAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
}

// SessionEvent is the narrow projection the session engine folds over.
type SessionEvent struct {
	ID         uint
	SessionKey string
	EventName  string
	Path       string
	UTMSource  *string
	Timestamp  time.Time
}

// GroupCount is one row of a grouped count. Key is nil for the NULL group.
type GroupCount struct {
	Key   *string `gorm:"column:group_key"`
	Count int64   `gorm:"column:group_count"`
}

// GroupMax is one row of a grouped maximum.
type GroupMax struct {
	Key *string `gorm:"column:group_key"`
	Max *string `gorm:"column:group_max"`
}

// KeyOr returns the group key or fallback when the group is NULL.
func (g GroupCount) KeyOr(fallback string) string {
	if g.Key == nil {
		return fallback
	}
	return *g.Key
}
