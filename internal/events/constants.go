package events

import (
	"sort"
	"strings"
	"sync"
)

// Built-in event names
const (
	EventPageview    = "pageview"
	EventClick       = "click"
	EventFormSubmit  = "form_submit"
	EventScrollDepth = "scroll_depth"
)

// NotSetLabel replaces a NULL utm_source in traffic reports.
const NotSetLabel = "(not set)"

// DirectReferrer labels pageviews without a referrer.
const DirectReferrer = "Direct"

var (
	namesMu    sync.RWMutex
	knownNames = map[string]struct{}{
		EventPageview:    {},
		EventClick:       {},
		EventFormSubmit:  {},
		EventScrollDepth: {},
	}
)

// RegisterEventNames extends the set of accepted event names.
func RegisterEventNames(names ...string) {
	namesMu.Lock()
	defer namesMu.Unlock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			knownNames[name] = struct{}{}
		}
	}
}

// IsKnownEventName reports whether name is accepted by the ingestion gate.
func IsKnownEventName(name string) bool {
	namesMu.RLock()
	defer namesMu.RUnlock()
	_, ok := knownNames[name]
	return ok
}

// KnownEventNames returns the accepted event names in sorted order.
func KnownEventNames() []string {
	namesMu.RLock()
	defer namesMu.RUnlock()
	names := make([]string, 0, len(knownNames))
	for name := range knownNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
