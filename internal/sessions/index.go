// Package sessions infers browsing sessions from the flat event log.
//
// A session is the set of events sharing a session key inside one report
// window. Sessions are never stored: every report folds the window's events
// once into an Index and answers all session questions from it. Because the
// fold is window-relative, the same session can bounce in one window and not
// in another.
//
// Events are folded in (session key, timestamp, id) order, so among events
// with equal timestamps the one inserted first is treated as earlier. That
// makes it the landing event when it opens a session and keeps the later
// insertion as the exit event when it closes one.
package sessions

import (
	"time"

	"trackly/internal/events"
)

// Summary holds the facts derived for one session in one window.
type Summary struct {
	Key           string
	EventCount    int
	PageviewCount int
	LandingPath   string
	ExitPath      string
	LandingSource *string
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Bounced reports whether the session had exactly one event in the window.
func (s *Summary) Bounced() bool {
	return s.EventCount == 1
}

// Duration is the time between the first and last event.
func (s *Summary) Duration() time.Duration {
	return s.LastSeen.Sub(s.FirstSeen)
}

// Accumulator folds events into session summaries. Events must arrive
// grouped by session key and, within a key, ordered by timestamp then id.
type Accumulator struct {
	index   *Index
	current *Summary
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{index: &Index{sessions: make(map[string]*Summary)}}
}

// Add folds one event into the accumulator.
func (a *Accumulator) Add(ev events.SessionEvent) {
	if a.current == nil || a.current.Key != ev.SessionKey {
		a.flush()
		a.current = &Summary{
			Key:           ev.SessionKey,
			LandingPath:   ev.Path,
			LandingSource: ev.UTMSource,
			FirstSeen:     ev.Timestamp,
		}
	}

	a.current.EventCount++
	if ev.EventName == events.EventPageview {
		a.current.PageviewCount++
	}
	a.current.ExitPath = ev.Path
	a.current.LastSeen = ev.Timestamp
}

func (a *Accumulator) flush() {
	if a.current != nil {
		a.index.sessions[a.current.Key] = a.current
		a.current = nil
	}
}

// Index finishes the fold and returns the result. The accumulator must
// not be reused afterwards.
func (a *Accumulator) Index() *Index {
	a.flush()
	return a.index
}

// Index answers session questions for a single window.
type Index struct {
	sessions map[string]*Summary
}

// Len is the number of sessions in the window.
func (i *Index) Len() int {
	return len(i.sessions)
}

// Get returns the summary for a session key.
func (i *Index) Get(key string) (*Summary, bool) {
	s, ok := i.sessions[key]
	return s, ok
}

// Each calls fn for every session in unspecified order.
func (i *Index) Each(fn func(*Summary)) {
	for _, s := range i.sessions {
		fn(s)
	}
}

// EventCounts maps each session key to its number of events in the window.
func (i *Index) EventCounts() map[string]int {
	counts := make(map[string]int, len(i.sessions))
	for key, s := range i.sessions {
		counts[key] = s.EventCount
	}
	return counts
}

// Bounced returns the set of single-event sessions.
func (i *Index) Bounced() map[string]struct{} {
	bounced := make(map[string]struct{})
	for key, s := range i.sessions {
		if s.Bounced() {
			bounced[key] = struct{}{}
		}
	}
	return bounced
}

// BounceCount is the number of single-event sessions.
func (i *Index) BounceCount() int {
	n := 0
	for _, s := range i.sessions {
		if s.Bounced() {
			n++
		}
	}
	return n
}

// LandingPage returns the path of the session's earliest event.
func (i *Index) LandingPage(key string) (string, bool) {
	s, ok := i.sessions[key]
	if !ok {
		return "", false
	}
	return s.LandingPath, true
}

// ExitPage returns the path of the session's latest event.
func (i *Index) ExitPage(key string) (string, bool) {
	s, ok := i.sessions[key]
	if !ok {
		return "", false
	}
	return s.ExitPath, true
}

// LandingCounts counts sessions per landing path.
func (i *Index) LandingCounts() map[string]int {
	counts := make(map[string]int)
	for _, s := range i.sessions {
		counts[s.LandingPath]++
	}
	return counts
}

// ExitCounts counts sessions per exit path.
func (i *Index) ExitCounts() map[string]int {
	counts := make(map[string]int)
	for _, s := range i.sessions {
		counts[s.ExitPath]++
	}
	return counts
}

// BouncesByPath counts bounced sessions per path. A bounced session has a
// single event, so its landing page is also the only page it touched.
func (i *Index) BouncesByPath() map[string]int {
	counts := make(map[string]int)
	for _, s := range i.sessions {
		if s.Bounced() {
			counts[s.LandingPath]++
		}
	}
	return counts
}

// BouncesBySource counts bounced sessions per utm_source of their only
// event. Sessions without a source are keyed by fallback.
func (i *Index) BouncesBySource(fallback string) map[string]int {
	counts := make(map[string]int)
	for _, s := range i.sessions {
		if !s.Bounced() {
			continue
		}
		key := fallback
		if s.LandingSource != nil {
			key = *s.LandingSource
		}
		counts[key]++
	}
	return counts
}

// BounceRate is 100 * bounced sessions on path / sessions touching path,
// or 0 when no session touched the path.
func (i *Index) BounceRate(path string, touching int64) float64 {
	return Percent(int64(i.BouncesByPath()[path]), touching)
}

// Percent returns 100*part/whole, or 0 when whole is 0.
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}
