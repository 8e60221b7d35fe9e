package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"trackly/internal/events"
)

// Seeder generates realistic browsing sessions and feeds them through the
// ingestion gate.
type Seeder struct {
	Gate       *events.Gate
	Logger     *slog.Logger
	EventCount int
	Days       int
	Host       string

	rand *rand.Rand
	now  func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(gate *events.Gate, logger *slog.Logger, eventCount, days int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if days < 1 {
		days = 1
	}
	return &Seeder{
		Gate:       gate,
		Logger:     logger,
		EventCount: eventCount,
		Days:       days,
		Host:       "example.com",
		rand:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:        time.Now,
	}
}

// WithSeed makes generation reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rand = rand.New(rand.NewPCG(seed, seed))
	return s
}

// WithClock pins the end of the seeded period.
func (s *Seeder) WithClock(now func() time.Time) *Seeder {
	s.now = now
	return s
}

var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/products", "/products/widget-a", "/products/gadget-b", "/pricing"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/", "/blog", "/blog/article-1", "/blog/article-2"},
	{"/", "/signup"},
	{"/blog/article-1", "/about", "/pricing", "/signup"},
}

var pageTitles = map[string]string{
	"/":                     "Home",
	"/about":                "About us",
	"/contact":              "Contact",
	"/features":             "Features",
	"/pricing":              "Pricing",
	"/signup":               "Sign up",
	"/blog":                 "Blog",
	"/blog/article-1":       "Launching our new dashboard",
	"/blog/article-2":       "Privacy-first analytics",
	"/products":             "Products",
	"/products/widget-a":    "Widget A",
	"/products/gadget-b":    "Gadget B",
	"/docs":                 "Documentation",
	"/docs/getting-started": "Getting started",
	"/docs/api-reference":   "API reference",
}

type campaign struct {
	source, medium, name string
	referrer             string
}

// An empty source means the visit carries no utm parameters.
var campaigns = []campaign{
	{},
	{},
	{referrer: "https://www.google.com/"},
	{source: "google", medium: "cpc", name: "spring_sale", referrer: "https://www.google.com/"},
	{source: "newsletter", medium: "email", name: "weekly"},
	{source: "twitter", medium: "social", referrer: "https://t.co/abc"},
	{referrer: "https://news.ycombinator.com/"},
	{source: "reddit", medium: "social", referrer: "https://www.reddit.com/r/golang"},
}

var locations = []struct{ country, region string }{
	{"United States", "California"},
	{"United States", "New York"},
	{"Spain", "Madrid"},
	{"Germany", "Berlin"},
	{"France", "Île-de-France"},
	{"United Kingdom", "England"},
	{"Japan", "Tokyo"},
	{"", ""},
}

var clickableEvents = []string{events.EventClick, events.EventScrollDepth, events.EventFormSubmit}

// Run generates sessions until EventCount events were accepted and
// returns the number written.
func (s *Seeder) Run(ctx context.Context) (int, error) {
	start := time.Now()
	s.Logger.Info("Seeding events...",
		slog.Int("event_count", s.EventCount),
		slog.Int("days", s.Days))

	users := make([]string, max(s.EventCount/8, 1))
	for i := range users {
		users[i] = uuid.NewString()
	}

	created := 0
	for created < s.EventCount {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		n, err := s.seedSession(ctx, users[s.rand.IntN(len(users))], s.EventCount-created)
		created += n
		if err != nil {
			return created, fmt.Errorf("failed to seed session: %w", err)
		}
	}

	s.Logger.Info("Seeding completed",
		slog.Int("events", created),
		slog.Duration("elapsed", time.Since(start)))
	return created, nil
}

func (s *Seeder) seedSession(ctx context.Context, userID string, remaining int) (int, error) {
	journey := journeyTemplates[s.rand.IntN(len(journeyTemplates))]
	// Roughly a third of visits bounce on their landing page.
	if s.rand.IntN(3) == 0 {
		journey = journey[:1]
	}

	sessionID := uuid.NewString()
	visit := campaigns[s.rand.IntN(len(campaigns))]
	location := locations[s.rand.IntN(len(locations))]

	now := s.now().UTC()
	window := time.Duration(s.Days) * 24 * time.Hour
	ts := now.Add(-time.Duration(s.rand.Int64N(int64(window))))

	created := 0
	for i, path := range journey {
		if created >= remaining {
			break
		}

		payload := s.payload(path, ts, sessionID, userID, visit, location)
		if i > 0 {
			payload.Referrer = str(fmt.Sprintf("https://%s%s", s.Host, journey[i-1]))
		}
		if _, err := s.Gate.Accept(ctx, payload, events.RequestMeta{}); err != nil {
			return created, err
		}
		created++

		// Multi-page visits interact with some pages.
		if len(journey) > 1 && created < remaining && s.rand.IntN(4) == 0 {
			interaction := s.payload(path, ts.Add(5*time.Second), sessionID, userID, visit, location)
			interaction.EventName = clickableEvents[s.rand.IntN(len(clickableEvents))]
			if _, err := s.Gate.Accept(ctx, interaction, events.RequestMeta{}); err != nil {
				return created, err
			}
			created++
		}

		ts = ts.Add(time.Duration(10+s.rand.IntN(110)) * time.Second)
		if ts.After(now) {
			ts = now
		}
	}
	return created, nil
}

func (s *Seeder) payload(path string, ts time.Time, sessionID, userID string, visit campaign, location struct{ country, region string }) events.Payload {
	url := fmt.Sprintf("https://%s%s", s.Host, path)
	if visit.source != "" {
		url += "?utm_source=" + visit.source
	}

	payload := events.Payload{
		EventName:   events.EventPageview,
		Timestamp:   ts.Format(time.RFC3339Nano),
		ReceivedAt:  ts.Add(time.Duration(s.rand.IntN(900)) * time.Millisecond).Format(time.RFC3339Nano),
		URL:         url,
		Path:        path,
		Title:       str(pageTitles[path]),
		SessionID:   str(sessionID),
		UserID:      str(userID),
		Referrer:    str(visit.referrer),
		UTMSource:   str(visit.source),
		UTMMedium:   str(visit.medium),
		UTMCampaign: str(visit.name),
		Country:     str(location.country),
		Region:      str(location.region),
	}
	return payload
}

// str returns nil for "" so optional fields stay NULL.
func str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
