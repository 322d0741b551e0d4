// Package app is the client's application controller: it owns the session
// state (which wishlist is open), turns user actions into gateway calls,
// keeps the open wishlist live through the realtime channel and hands fresh
// snapshots to the view.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sakif/wishlist/internal/changefeed"
	"github.com/sakif/wishlist/internal/gateway"
	"github.com/sakif/wishlist/internal/i18n"
	"github.com/sakif/wishlist/internal/listactions"
	"github.com/sakif/wishlist/internal/model"
	"github.com/sakif/wishlist/internal/realtime"
	"github.com/sakif/wishlist/internal/recent"
	"github.com/sakif/wishlist/internal/router"
	"github.com/sakif/wishlist/internal/theme"
)

// touchTimeout bounds the fire-and-forget last-accessed update.
const touchTimeout = 10 * time.Second

// Gateway is the part of the remote data gateway the controller uses.
type Gateway interface {
	CreateWishlist(ctx context.Context, name string) (*model.Wishlist, error)
	GetWishlist(ctx context.Context, id string) (*model.FullWishlist, error)
	RenameWishlist(ctx context.Context, id, name string) error
	DeleteWishlist(ctx context.Context, id string) error
	TouchLastAccessed(ctx context.Context, id string) error
	CreateSublist(ctx context.Context, wishlistID, name string, order int) (*model.Sublist, error)
	RenameSublist(ctx context.Context, id int64, name string) error
	DeleteSublist(ctx context.Context, id int64) error
	CreateItem(ctx context.Context, sublistID int64, text string, order int) (*model.Item, error)
	UpdateItem(ctx context.Context, id int64, patch model.ItemPatch) error
	ClaimItem(ctx context.Context, id int64, name string) error
	UnclaimItem(ctx context.Context, id int64) error
	DeleteItem(ctx context.Context, id int64) error
	ImportFromJSON(ctx context.Context, full *model.FullWishlist) (*model.Wishlist, error)
}

// Subscriber is the realtime channel manager.
type Subscriber interface {
	Subscribe(ctx context.Context, wishlistID string, cb realtime.Callbacks) (string, error)
	UnsubscribeAll(ctx context.Context) error
}

// Copier puts a share link on the clipboard, returning a browser-side
// fallback script when it could not.
type Copier interface {
	Copy(text string) (script string)
}

// View receives everything the controller wants shown.
type View interface {
	// Update re-renders from a fresh snapshot.
	Update(s Snapshot)
	// Alert shows an error.
	Alert(message string)
	// Notify shows an informational message.
	Notify(message string)
	// Navigate moves the visible location to path.
	Navigate(path string)
	// RunScript runs js in the view.
	RunScript(js string)
}

// Deps wires a Controller.
type Deps struct {
	Gateway  Gateway
	Realtime Subscriber
	Recent   *recent.Cache
	Language *i18n.Service
	Theme    *theme.Service
	Copier   Copier
	History  router.History
	View     View
	Logger   *slog.Logger
	// Origin is the base URL share links point at.
	Origin string
	Now    func() time.Time
}

// Controller is one user session.
type Controller struct {
	ctx    context.Context
	gw     Gateway
	rt     Subscriber
	recent *recent.Cache
	lang   *i18n.Service
	theme  *theme.Service
	copier Copier
	router *router.Router
	view   View
	logger *slog.Logger
	origin string
	now    func() time.Time

	// busy admits one user action at a time.
	busy atomic.Bool
	// gen is bumped by every load, reload and return home; a fetched
	// snapshot is applied only if no newer one was started since.
	gen atomic.Uint64

	mu        sync.RWMutex
	current   *model.FullWishlist
	currentID string

	removeLangListener func()
}

// New creates a Controller whose background work lives as long as ctx.
func New(ctx context.Context, d Deps) *Controller {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.History == nil {
		d.History = router.NewMemoryHistory("/")
	}

	c := &Controller{
		ctx:    ctx,
		gw:     d.Gateway,
		rt:     d.Realtime,
		recent: d.Recent,
		lang:   d.Language,
		theme:  d.Theme,
		copier: d.Copier,
		view:   d.View,
		logger: d.Logger,
		origin: d.Origin,
		now:    d.Now,
	}

	c.router = router.New(d.History, d.Logger)
	c.router.On(router.Home, func(router.Params) {
		c.ShowStart()
	})
	c.router.On(router.Wishlist, func(p router.Params) {
		c.Load(c.ctx, p.UUID)
	})
	c.router.NotFound(func(router.Params) {
		c.navigate("/")
	})

	c.removeLangListener = c.lang.AddListener(func(i18n.Language) {
		c.view.Update(c.Snapshot())
	})
	return c
}

// Router exposes the session's router so the view can report location
// changes (page loads, back/forward).
func (c *Controller) Router() *router.Router {
	return c.router
}

// Close tears the session down.
func (c *Controller) Close(ctx context.Context) error {
	c.removeLangListener()
	c.gen.Add(1)
	return c.rt.UnsubscribeAll(ctx)
}

// begin tries to take the in-flight flag. Callers must call end.
func (c *Controller) begin() bool {
	return c.busy.CompareAndSwap(false, true)
}

func (c *Controller) end() {
	c.busy.Store(false)
}

// Busy reports whether a user action is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// fail alerts the user with "<prefix>: <message>" and logs err.
func (c *Controller) fail(message string, err error) {
	t := c.lang.T()
	if err != nil {
		if gateway.IsUnavailable(err) {
			message = t.ErrorBackendOffline
		}
		c.logger.Error(message, slog.String("error", err.Error()))
	} else {
		c.logger.Warn(message)
	}
	c.view.Alert(t.ErrorPrefix + ": " + message)
}

func (c *Controller) navigate(path string) {
	c.view.Navigate(path)
	c.router.Navigate(path)
}

// snapshotState returns the open wishlist and its id.
func (c *Controller) snapshotState() (*model.FullWishlist, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.currentID
}

// apply stores full as the open wishlist if gen is still the newest
// generation and id is still the open wishlist.
func (c *Controller) apply(gen uint64, id string, full *model.FullWishlist) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen.Load() || c.currentID != id {
		return false
	}
	c.current = full
	return true
}

// ShowStart clears the session and shows the start view.
func (c *Controller) ShowStart() {
	c.mu.Lock()
	c.gen.Add(1)
	c.current = nil
	c.currentID = ""
	c.mu.Unlock()

	if err := c.rt.UnsubscribeAll(c.ctx); err != nil {
		c.logger.Warn("failed to unsubscribe", slog.String("error", err.Error()))
	}
	c.view.Update(c.Snapshot())
}

// Load opens wishlist id: fetch, remember it as recent, touch its
// last-accessed time, subscribe to its changes and render.
func (c *Controller) Load(ctx context.Context, id string) {
	if !c.begin() {
		return
	}

	c.mu.Lock()
	gen := c.gen.Add(1)
	c.currentID = id
	c.mu.Unlock()

	t := c.lang.T()
	full, err := c.gw.GetWishlist(ctx, id)
	if err != nil || full == nil {
		c.end()
		if err != nil {
			c.fail(t.ErrorLoadFailed, err)
		} else {
			c.fail(t.ErrorNotFound, nil)
		}
		c.navigate("/")
		return
	}
	defer c.end()

	// Superseded by a navigation: the list is no longer the open one.
	if !c.apply(gen, id, full) {
		c.logger.Debug("discarding stale load", slog.String("wishlist_id", id))
		return
	}

	if err := c.recent.Save(id, full.Name); err != nil {
		c.logger.Warn("failed to remember recent list", slog.String("error", err.Error()))
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()
		if err := c.gw.TouchLastAccessed(ctx, id); err != nil {
			c.logger.Error("failed to update last accessed",
				slog.String("wishlist_id", id),
				slog.String("error", err.Error()),
			)
		}
	}()

	c.subscribe(ctx, id)
	c.view.Update(c.Snapshot())
}

// subscribe keeps wishlist id live. Every change reloads the whole list;
// for the wishlist row itself only updates matter.
func (c *Controller) subscribe(ctx context.Context, id string) {
	reload := func(changefeed.Change) { c.reload(id) }
	_, err := c.rt.Subscribe(ctx, id, realtime.Callbacks{
		OnWishlist: func(ch changefeed.Change) {
			if ch.Type == changefeed.Update {
				c.reload(id)
			}
		},
		OnSublist: reload,
		OnItem:    reload,
		// Changes made while the channel was down were never delivered.
		OnResync: func() { c.reload(id) },
	})
	if err != nil {
		c.logger.Warn("realtime unavailable, list will not update live",
			slog.String("wishlist_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// reload refetches wishlist id if it is still open. It ignores the
// in-flight flag; stale results are dropped by generation.
func (c *Controller) reload(id string) {
	c.mu.Lock()
	if c.currentID != id {
		c.mu.Unlock()
		return
	}
	gen := c.gen.Add(1)
	c.mu.Unlock()

	full, err := c.gw.GetWishlist(c.ctx, id)
	if err != nil {
		c.logger.Error("failed to reload wishlist",
			slog.String("wishlist_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	if full == nil {
		c.logger.Warn("open wishlist no longer exists", slog.String("wishlist_id", id))
		return
	}

	if c.apply(gen, id, full) {
		c.view.Update(c.Snapshot())
	}
}

// Refresh reloads the open wishlist, if any.
func (c *Controller) Refresh() {
	if _, id := c.snapshotState(); id != "" {
		c.reload(id)
	}
}

// CreateWishlist creates a list named name and opens it.
func (c *Controller) CreateWishlist(ctx context.Context, name string) {
	if !c.begin() {
		return
	}

	t := c.lang.T()
	name = strings.TrimSpace(name)
	if name == "" {
		c.end()
		c.fail(t.ErrorNoName, nil)
		return
	}

	w, err := c.gw.CreateWishlist(ctx, name)
	c.end()
	if err != nil {
		c.fail(t.ErrorCreateFailed, err)
		return
	}
	c.navigate("/" + w.ID)
}

// mutate runs one write against the open wishlist under the in-flight flag
// and reloads afterwards, whether or not realtime delivers the change.
func (c *Controller) mutate(failMessage string, fn func(full *model.FullWishlist, id string) error) {
	full, id := c.snapshotState()
	if id == "" || !c.begin() {
		return
	}

	err := fn(full, id)
	c.end()

	if errors.Is(err, errSkip) {
		return
	}
	if err != nil {
		c.fail(failMessage, err)
		return
	}
	c.reload(id)
}

// errSkip aborts a mutation without an alert.
var errSkip = errors.New("skip")

// AddSublist appends a sublist named name to the open wishlist.
func (c *Controller) AddSublist(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.mutate(c.lang.T().ErrorAddSublist, func(full *model.FullWishlist, id string) error {
		order := 0
		if full != nil {
			order = len(full.Sublists)
		}
		_, err := c.gw.CreateSublist(ctx, id, name, order)
		return err
	})
}

// RenameSublist renames sublist sublistID.
func (c *Controller) RenameSublist(ctx context.Context, sublistID int64, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	c.mutate(c.lang.T().ErrorUpdateSublist, func(*model.FullWishlist, string) error {
		return c.gw.RenameSublist(ctx, sublistID, name)
	})
}

// DeleteSublist deletes sublist sublistID with its items.
func (c *Controller) DeleteSublist(ctx context.Context, sublistID int64) {
	c.mutate(c.lang.T().ErrorUpdateSublist, func(*model.FullWishlist, string) error {
		return c.gw.DeleteSublist(ctx, sublistID)
	})
}

// AddItem appends an item to sublist sublistID.
func (c *Controller) AddItem(ctx context.Context, sublistID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mutate(c.lang.T().ErrorAddItem, func(full *model.FullWishlist, _ string) error {
		order := 0
		if full != nil {
			if s, ok := full.FindSublist(sublistID); ok {
				order = len(s.Items)
			}
		}
		_, err := c.gw.CreateItem(ctx, sublistID, text, order)
		return err
	})
}

// EditItem replaces an item's text.
func (c *Controller) EditItem(ctx context.Context, itemID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mutate(c.lang.T().ErrorEditItem, func(*model.FullWishlist, string) error {
		return c.gw.UpdateItem(ctx, itemID, model.ItemPatch{Text: &text})
	})
}

// DeleteItem deletes an item. Confirmation is the view's job.
func (c *Controller) DeleteItem(ctx context.Context, itemID int64) {
	c.mutate(c.lang.T().ErrorDeleteItem, func(*model.FullWishlist, string) error {
		return c.gw.DeleteItem(ctx, itemID)
	})
}

// ToggleClaim claims an unclaimed item for claimant, or releases a claimed
// one. Claiming needs a non-empty claimant.
func (c *Controller) ToggleClaim(ctx context.Context, itemID int64, claimant string) {
	t := c.lang.T()
	claimant = strings.TrimSpace(claimant)

	c.mutate(t.ErrorClaimFailed, func(full *model.FullWishlist, _ string) error {
		if full == nil {
			return errSkip
		}
		item, ok := full.FindItem(itemID)
		if !ok {
			return errSkip
		}
		if item.Claimed {
			return c.gw.UnclaimItem(ctx, itemID)
		}
		if claimant == "" {
			c.fail(t.ErrorNoClaimant, nil)
			return errSkip
		}
		return c.gw.ClaimItem(ctx, itemID, claimant)
	})
}

// RenameWishlist renames the open wishlist.
func (c *Controller) RenameWishlist(ctx context.Context, name string) {
	t := c.lang.T()
	name = strings.TrimSpace(name)
	if name == "" {
		c.fail(t.ErrorNoName, nil)
		return
	}
	c.mutate(t.ErrorRenameFailed, func(_ *model.FullWishlist, id string) error {
		if err := c.gw.RenameWishlist(ctx, id, name); err != nil {
			return err
		}
		if err := c.recent.Save(id, name); err != nil {
			c.logger.Warn("failed to remember recent list", slog.String("error", err.Error()))
		}
		return nil
	})
}

// DeleteWishlist deletes the open wishlist and returns to the start view.
func (c *Controller) DeleteWishlist(ctx context.Context) {
	_, id := c.snapshotState()
	if id == "" || !c.begin() {
		return
	}

	err := c.gw.DeleteWishlist(ctx, id)
	c.end()
	if err != nil {
		c.fail(c.lang.T().ErrorDeleteFailed, err)
		return
	}

	if r := c.recent.Get(); r != nil && r.UUID == id {
		c.recent.Clear()
	}
	c.GoHome(ctx)
}

// Import reads an exported file from r and opens the imported list. A nil r
// means the user picked no file, which is not an error.
func (c *Controller) Import(ctx context.Context, r io.Reader) {
	if !c.begin() {
		return
	}

	t := c.lang.T()
	full, err := listactions.Import(r)
	if err != nil {
		c.end()
		switch {
		case errors.Is(err, listactions.ErrCancelled):
		case errors.Is(err, listactions.ErrInvalidFile):
			c.fail(t.ErrorInvalidFile, err)
		default:
			c.fail(t.ErrorImportFailed, err)
		}
		return
	}

	w, err := c.gw.ImportFromJSON(ctx, full)
	c.end()
	if err != nil {
		c.fail(t.ErrorImportFailed, err)
		return
	}
	c.navigate("/" + w.ID)
}

// Export returns the open wishlist as a named JSON file. ok is false when
// nothing is open or encoding failed (after alerting).
func (c *Controller) Export() (filename string, data []byte, ok bool) {
	full, _ := c.snapshotState()
	if full == nil {
		return "", nil, false
	}
	filename, data, err := listactions.Export(full, c.now())
	if err != nil {
		c.fail(c.lang.T().ErrorExportFailed, err)
		return "", nil, false
	}
	return filename, data, true
}

// Share copies the open wishlist's link and tells the user. It returns the
// link, or "" when nothing is open.
func (c *Controller) Share() string {
	_, id := c.snapshotState()
	if id == "" {
		return ""
	}

	url := listactions.ShareURL(c.origin, id)
	if script := c.copier.Copy(url); script != "" {
		c.view.RunScript(script)
	}
	c.view.Notify(c.lang.T().CopiedToClipboard)
	return url
}

// ContinueRecent opens the remembered recent list, if there still is one.
func (c *Controller) ContinueRecent() {
	if r := c.recent.Get(); r != nil {
		c.navigate("/" + r.UUID)
	}
}

// GoHome leaves the open wishlist.
func (c *Controller) GoHome(ctx context.Context) {
	if err := c.rt.UnsubscribeAll(ctx); err != nil {
		c.logger.Warn("failed to unsubscribe", slog.String("error", err.Error()))
	}
	c.navigate("/")
}

// SetLanguage switches the UI language; the view re-renders through the
// language listener.
func (c *Controller) SetLanguage(lang i18n.Language) {
	if err := c.lang.SetLanguage(lang); err != nil {
		c.logger.Warn("failed to set language", slog.String("error", err.Error()))
	}
}

// SetTheme switches the theme and re-renders.
func (c *Controller) SetTheme(t theme.Theme) {
	if err := c.theme.Set(t); err != nil {
		c.logger.Warn("failed to set theme", slog.String("error", err.Error()))
		return
	}
	c.view.Update(c.Snapshot())
}
