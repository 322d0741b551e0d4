// Package theme tracks the light/dark appearance choice.
package theme

import (
	"fmt"
	"sync"

	"github.com/sakif/wishlist/internal/prefs"
)

// Theme is the UI appearance.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == Light || t == Dark
}

// Service holds the current theme, persisted in a prefs.Store.
type Service struct {
	store prefs.Store

	mu      sync.RWMutex
	current Theme
}

// NewService loads the stored theme. Without one, fallback is used (the
// caller's guess at the system preference); an invalid fallback means Light.
func NewService(store prefs.Store, fallback Theme) *Service {
	if !fallback.Valid() {
		fallback = Light
	}
	s := &Service{store: store, current: fallback}
	if v, ok := store.Get(prefs.KeyTheme); ok && Theme(v).Valid() {
		s.current = Theme(v)
	}
	return s
}

// Theme returns the current theme.
func (s *Service) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set switches to t and persists it.
func (s *Service) Set(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("theme: unknown theme %q", t)
	}
	if err := s.store.Set(prefs.KeyTheme, string(t)); err != nil {
		return fmt.Errorf("theme: saving: %w", err)
	}
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
	return nil
}

// Toggle flips between light and dark and returns the new theme.
func (s *Service) Toggle() (Theme, error) {
	next := Dark
	if s.Theme() == Dark {
		next = Light
	}
	if err := s.Set(next); err != nil {
		return s.Theme(), err
	}
	return next, nil
}
