package app

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/sakif/wishlist/internal/i18n"
	"github.com/sakif/wishlist/internal/model"
	"github.com/sakif/wishlist/internal/recent"
	"github.com/sakif/wishlist/internal/theme"
)

//go:embed templates/*.html
var templatesFS embed.FS

var tmpl = template.Must(template.New("app").ParseFS(templatesFS, "templates/*.html"))

// Screen is which view is showing.
type Screen string

const (
	ScreenStart Screen = "start"
	ScreenList  Screen = "list"
)

// Snapshot is everything the renderer needs, captured at one moment.
type Snapshot struct {
	Screen   Screen
	Wishlist *model.FullWishlist
	Recent   *recent.List
	Language i18n.Language
	Theme    theme.Theme
	T        i18n.Translations
}

// Snapshot captures the current state.
func (c *Controller) Snapshot() Snapshot {
	full, id := c.snapshotState()
	s := Snapshot{
		Screen:   ScreenStart,
		Wishlist: full,
		Language: c.lang.Language(),
		Theme:    c.theme.Theme(),
		T:        c.lang.T(),
	}
	if id != "" && full != nil {
		s.Screen = ScreenList
	} else {
		s.Wishlist = nil
		s.Recent = c.recent.Get()
	}
	return s
}

// RenderSublists renders the sublist tree of s. It is a pure function of
// the snapshot.
func RenderSublists(s Snapshot) (template.HTML, error) {
	return execute("sublists", s)
}

// RenderTitle renders the list heading.
func RenderTitle(s Snapshot) (template.HTML, error) {
	return execute("title", s)
}

// RenderStart renders the start view's recent-list section.
func RenderStart(s Snapshot) (template.HTML, error) {
	return execute("start", s)
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
