// Package changefeed is the backend's row-change publish/subscribe hub.
//
// Storage publishes one Change per committed row write. Subscribers declare
// interest with bindings (a table plus an optional equality filter such as
// "wishlist_id=eq.5f0c…") and receive every matching change on a channel.
//
// Fan-out never blocks the writer: a subscriber whose buffer is full misses
// the event. Clients are expected to treat any event as "something changed"
// and reload, so a dropped duplicate is harmless.
package changefeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Table names published by storage.
const (
	TableWishlists = "wishlists"
	TableSublists  = "sublists"
	TableItems     = "items"
)

// Change is one committed row change. New is empty for deletes, Old is empty
// for inserts.
type Change struct {
	Table           string         `json:"table"`
	Type            EventType      `json:"type"`
	New             map[string]any `json:"new,omitempty"`
	Old             map[string]any `json:"old,omitempty"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// Publisher accepts committed changes.
type Publisher interface {
	Publish(c Change)
}

// Record converts a JSON-tagged struct into the map form carried by a Change.
func Record(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// Binding declares interest in one table, optionally narrowed by an equality
// filter of the form "column=eq.value".
type Binding struct {
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type filter struct {
	column string
	value  string
}

func parseFilter(raw string) (*filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	col, rest, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(col) == "" {
		return nil, fmt.Errorf("changefeed: malformed filter %q", raw)
	}
	op, val, ok := strings.Cut(rest, ".")
	if !ok || op != "eq" {
		return nil, fmt.Errorf("changefeed: unsupported filter operator in %q (only eq)", raw)
	}
	return &filter{column: strings.TrimSpace(col), value: val}, nil
}

func (f *filter) matches(c Change) bool {
	if f == nil {
		return true
	}
	rec := c.New
	if len(rec) == 0 {
		rec = c.Old
	}
	v, ok := rec[f.column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.value
}

type compiledBinding struct {
	table  string
	filter *filter
}

// Delivery is a change routed to a subscriber, tagged with the index of the
// binding that matched it.
type Delivery struct {
	Binding int
	Change  Change
}

// Subscription is one subscriber's view of the hub.
type Subscription struct {
	C <-chan Delivery

	ch       chan Delivery
	bindings []compiledBinding
	hub      *Hub
	once     sync.Once
}

// Close detaches the subscription and closes C. It is safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Hub fans changes out to subscriptions.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

// NewHub creates an empty hub. buffer is the per-subscriber queue length.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: map[*Subscription]struct{}{}, buffer: buffer}
}

// Subscribe registers bindings and returns a subscription receiving every
// change that matches at least one of them. A change matching several bindings
// is delivered once per binding.
func (h *Hub) Subscribe(bindings []Binding) (*Subscription, error) {
	compiled := make([]compiledBinding, 0, len(bindings))
	for _, b := range bindings {
		table := strings.TrimSpace(b.Table)
		if table == "" {
			return nil, fmt.Errorf("changefeed: binding without table")
		}
		f, err := parseFilter(b.Filter)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledBinding{table: table, filter: f})
	}

	ch := make(chan Delivery, h.buffer)
	s := &Subscription{C: ch, ch: ch, bindings: compiled, hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s, nil
}

// Publish routes c to every matching subscription without blocking.
func (h *Hub) Publish(c Change) {
	if c.CommitTimestamp.IsZero() {
		c.CommitTimestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		for i, b := range s.bindings {
			if b.table != c.Table || !b.filter.matches(c) {
				continue
			}
			select {
			case s.ch <- Delivery{Binding: i, Change: c}:
			default:
			}
		}
	}
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
