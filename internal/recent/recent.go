// Package recent remembers the most recently visited wishlist so the start
// page can offer to continue with it.
package recent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/wishlist/internal/prefs"
)

// MaxAge is how long an entry stays valid.
const MaxAge = 30 * 24 * time.Hour

// List is the stored entry. Timestamp is Unix milliseconds.
type List struct {
	UUID      string `json:"uuid"`
	Timestamp int64  `json:"timestamp"`
	ListName  string `json:"listName,omitempty"`
}

// Cache reads and writes the single recent-list entry.
type Cache struct {
	store  prefs.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the cache's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache on store.
func New(store prefs.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save records id (and optionally its name) as the recent list, replacing
// any previous entry.
func (c *Cache) Save(id, name string) error {
	b, err := json.Marshal(List{
		UUID:      id,
		Timestamp: c.now().UnixMilli(),
		ListName:  name,
	})
	if err != nil {
		return fmt.Errorf("recent: encoding: %w", err)
	}
	if err := c.store.Set(prefs.KeyRecentList, string(b)); err != nil {
		return fmt.Errorf("recent: saving: %w", err)
	}
	return nil
}

// Get returns the recent list, or nil when there is none, it cannot be
// parsed, or it has expired. An expired entry is removed.
func (c *Cache) Get() *List {
	raw, ok := c.store.Get(prefs.KeyRecentList)
	if !ok || raw == "" {
		return nil
	}

	var l List
	if err := json.Unmarshal([]byte(raw), &l); err != nil || l.UUID == "" {
		c.logger.Warn("ignoring malformed recent list entry")
		return nil
	}

	age := c.now().Sub(time.UnixMilli(l.Timestamp))
	if age > MaxAge {
		c.Clear()
		return nil
	}
	return &l
}

// Has reports whether a valid recent list exists.
func (c *Cache) Has() bool {
	return c.Get() != nil
}

// Clear removes the entry.
func (c *Cache) Clear() {
	if err := c.store.Delete(prefs.KeyRecentList); err != nil {
		c.logger.Error("failed to clear recent list", slog.String("error", err.Error()))
	}
}
