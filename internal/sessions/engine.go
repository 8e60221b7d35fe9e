package sessions

import (
	"context"
	"errors"
	"fmt"

	"trackly/internal/config"
	"trackly/internal/events"
	"trackly/internal/timeframe"
)

// ErrSessionNotFound is returned when a session has no events in the window.
var ErrSessionNotFound = errors.New("session not found in window")

// Policy decides how events without a session_id take part in sessions.
type Policy string

const (
	// ExcludeMissing leaves events without a session_id out of session metrics.
	ExcludeMissing Policy = config.MissingSessionExclude
	// SingletonMissing treats each such event as its own one-event session.
	SingletonMissing Policy = config.MissingSessionSingleton
)

// KeyField is the store field that identifies a session under this policy.
func (p Policy) KeyField() string {
	if p == SingletonMissing {
		return events.FieldSessionKey
	}
	return events.FieldSessionID
}

// Source is the slice of the event store the engine needs.
type Source interface {
	StreamSessionEvents(ctx context.Context, f events.Filter, keyField string, fn func(events.SessionEvent) error) error
	DistinctCount(ctx context.Context, field string, f events.Filter) (int64, error)
	DistinctCountBy(ctx context.Context, field, groupBy string, f events.Filter, opts ...events.GroupOption) ([]events.GroupCount, error)
}

// Engine derives session facts for report windows.
type Engine struct {
	source Source
	policy Policy
}

// NewEngine creates a session engine over source.
func NewEngine(source Source, policy Policy) *Engine {
	if policy != SingletonMissing {
		policy = ExcludeMissing
	}
	return &Engine{source: source, policy: policy}
}

// Policy returns the missing session policy in effect.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Infer folds every event in the window into a session index in one pass.
func (e *Engine) Infer(ctx context.Context, window timeframe.Window) (*Index, error) {
	return e.infer(ctx, e.filter(window))
}

func (e *Engine) infer(ctx context.Context, f events.Filter) (*Index, error) {
	acc := NewAccumulator()
	err := e.source.StreamSessionEvents(ctx, f, e.policy.KeyField(), func(ev events.SessionEvent) error {
		acc.Add(ev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error inferring sessions: %w", err)
	}
	return acc.Index(), nil
}

// SessionEventCounts maps every session in the window to its event count.
func (e *Engine) SessionEventCounts(ctx context.Context, window timeframe.Window) (map[string]int, error) {
	index, err := e.Infer(ctx, window)
	if err != nil {
		return nil, err
	}
	return index.EventCounts(), nil
}

// BouncedSessions returns the sessions with exactly one event in the window.
func (e *Engine) BouncedSessions(ctx context.Context, window timeframe.Window) (map[string]struct{}, error) {
	index, err := e.Infer(ctx, window)
	if err != nil {
		return nil, err
	}
	return index.Bounced(), nil
}

// LandingPage returns the path of the session's earliest event in the window.
func (e *Engine) LandingPage(ctx context.Context, sessionID string, window timeframe.Window) (string, error) {
	summary, err := e.session(ctx, sessionID, window)
	if err != nil {
		return "", err
	}
	return summary.LandingPath, nil
}

// ExitPage returns the path of the session's latest event in the window.
func (e *Engine) ExitPage(ctx context.Context, sessionID string, window timeframe.Window) (string, error) {
	summary, err := e.session(ctx, sessionID, window)
	if err != nil {
		return "", err
	}
	return summary.ExitPath, nil
}

func (e *Engine) session(ctx context.Context, sessionID string, window timeframe.Window) (*Summary, error) {
	f := e.filter(window)
	if id, ok := events.ParseAnonymousSessionKey(sessionID); ok {
		f.ID = id
	} else {
		f.SessionID = sessionID
	}

	index, err := e.infer(ctx, f)
	if err != nil {
		return nil, err
	}
	summary, ok := index.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return summary, nil
}

// BounceRate is the share of sessions touching path in the window that
// bounced on it, as a percentage. It is 0 when no session touched path.
func (e *Engine) BounceRate(ctx context.Context, path string, window timeframe.Window) (float64, error) {
	index, err := e.Infer(ctx, window)
	if err != nil {
		return 0, err
	}

	f := e.filter(window)
	f.Path = path
	touching, err := e.source.DistinctCount(ctx, e.policy.KeyField(), f)
	if err != nil {
		return 0, fmt.Errorf("error counting sessions on %s: %w", path, err)
	}

	return index.BounceRate(path, touching), nil
}

// TouchingSessions counts distinct sessions per path in the window.
func (e *Engine) TouchingSessions(ctx context.Context, window timeframe.Window) (map[string]int64, error) {
	return e.distinctSessionsBy(ctx, events.FieldPath, window)
}

// SessionsBySource counts distinct sessions per utm_source in the window.
// A session that arrived through several sources counts once under each.
func (e *Engine) SessionsBySource(ctx context.Context, window timeframe.Window) ([]events.GroupCount, error) {
	rows, err := e.source.DistinctCountBy(ctx, e.policy.KeyField(), events.FieldUTMSource, e.filter(window))
	if err != nil {
		return nil, fmt.Errorf("error counting sessions by source: %w", err)
	}
	return rows, nil
}

func (e *Engine) distinctSessionsBy(ctx context.Context, groupBy string, window timeframe.Window) (map[string]int64, error) {
	rows, err := e.source.DistinctCountBy(ctx, e.policy.KeyField(), groupBy, e.filter(window))
	if err != nil {
		return nil, fmt.Errorf("error counting sessions by %s: %w", groupBy, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		if row.Key != nil {
			counts[*row.Key] = row.Count
		}
	}
	return counts, nil
}

// filter bounds queries to the window. Under ExcludeMissing it also drops
// events without a session_id so per-group counts never include them.
func (e *Engine) filter(window timeframe.Window) events.Filter {
	f := events.Between(window.From, window.To)
	f.SessionNotNull = e.policy == ExcludeMissing
	return f
}
