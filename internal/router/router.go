// Package router maps client paths to view handlers.
//
// Two routes exist: the start page ("/" or "/index.html") and a wishlist page
// ("/<uuid>"). Anything else goes to the not-found handler.
package router

import (
	"log/slog"
	"regexp"
	"sync"
)

// Route patterns accepted by On.
const (
	Home     = "/"
	Wishlist = "/:uuid"
)

var uuidPath = regexp.MustCompile(`(?i)^/([a-f0-9-]{36})$`)

// Params carries what was extracted from the path.
type Params struct {
	UUID string
}

// Handler renders the view for a route. It runs on its own goroutine.
type Handler func(Params)

// History is the navigation history the router drives.
type History interface {
	Push(path string)
	Replace(path string)
	Path() string
}

// Router dispatches the current path of its History.
type Router struct {
	history History
	logger  *slog.Logger

	mu       sync.RWMutex
	routes   map[string]Handler
	notFound Handler

	wg sync.WaitGroup
}

// New creates a Router over h.
func New(h History, logger *slog.Logger) *Router {
	return &Router{
		history: h,
		logger:  logger,
		routes:  map[string]Handler{},
	}
}

// On registers handler for pattern (Home or Wishlist). A later registration
// for the same pattern replaces the earlier one.
func (r *Router) On(pattern string, handler Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[pattern] = handler
	return r
}

// NotFound registers the handler for unmatched paths.
func (r *Router) NotFound(handler Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = handler
	return r
}

// Navigate pushes path onto the history and dispatches it.
func (r *Router) Navigate(path string) {
	r.history.Push(path)
	r.handle()
}

// Replace swaps the current history entry for path and dispatches it.
func (r *Router) Replace(path string) {
	r.history.Replace(path)
	r.handle()
}

// Pop dispatches path after the user moved back or forward to it.
func (r *Router) Pop(path string) {
	r.history.Replace(path)
	r.handle()
}

// Start dispatches the current path.
func (r *Router) Start() {
	r.handle()
}

// CurrentPath is the history's current path.
func (r *Router) CurrentPath() string {
	return r.history.Path()
}

// CurrentUUID returns the wishlist id in the current path, or "".
func (r *Router) CurrentUUID() string {
	return MatchUUID(r.history.Path())
}

// MatchUUID returns the wishlist id when path is a wishlist path, or "".
func MatchUUID(path string) string {
	m := uuidPath.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}

// Wait blocks until every handler fired so far has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) handle() {
	path := r.history.Path()

	r.mu.RLock()
	home := r.routes[Home]
	wishlist := r.routes[Wishlist]
	notFound := r.notFound
	r.mu.RUnlock()

	if (path == "/" || path == "/index.html") && home != nil {
		r.fire(home, Params{})
		return
	}

	if id := MatchUUID(path); id != "" && wishlist != nil {
		r.fire(wishlist, Params{UUID: id})
		return
	}

	if notFound != nil {
		r.fire(notFound, Params{})
		return
	}
	r.logger.Warn("no handler for route", slog.String("path", path))
}

// fire runs h without waiting for it.
func (r *Router) fire(h Handler, p Params) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		h(p)
	}()
}

// MemoryHistory is a History kept in memory.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []string
	index   int
}

// NewMemoryHistory starts a history at path.
func NewMemoryHistory(path string) *MemoryHistory {
	return &MemoryHistory{entries: []string{path}}
}

func (h *MemoryHistory) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Pushing discards any forward entries.
	h.entries = append(h.entries[:h.index+1], path)
	h.index++
}

func (h *MemoryHistory) Replace(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.index] = path
}

func (h *MemoryHistory) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Len is the number of entries.
func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Back moves one entry back and returns the new path, or false at the start.
func (h *MemoryHistory) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return "", false
	}
	h.index--
	return h.entries[h.index], true
}

// Forward moves one entry forward and returns the new path, or false at the end.
func (h *MemoryHistory) Forward() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == len(h.entries)-1 {
		return "", false
	}
	h.index++
	return h.entries[h.index], true
}
