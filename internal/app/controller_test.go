package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/wishlist/internal/changefeed"
	"github.com/sakif/wishlist/internal/gateway"
	"github.com/sakif/wishlist/internal/i18n"
	"github.com/sakif/wishlist/internal/model"
	"github.com/sakif/wishlist/internal/prefs"
	"github.com/sakif/wishlist/internal/realtime"
	"github.com/sakif/wishlist/internal/recent"
	"github.com/sakif/wishlist/internal/router"
	"github.com/sakif/wishlist/internal/theme"
)

const listID = "123e4567-e89b-12d3-a456-426614174000"

// fakeGateway keeps wishlists in memory and records calls.
type fakeGateway struct {
	mu      sync.Mutex
	lists   map[string]*model.FullWishlist
	calls   []string
	nextID  int64
	touched chan string

	// Optional hooks, called before the default behaviour.
	onCreate func()
	onGet    func(id string)
	getErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		lists:   map[string]*model.FullWishlist{},
		touched: make(chan string, 16),
	}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) count(prefix string) int {
	n := 0
	for _, c := range g.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (g *fakeGateway) seed(full *model.FullWishlist) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lists[full.ID] = full
}

func (g *fakeGateway) CreateWishlist(ctx context.Context, name string) (*model.Wishlist, error) {
	if g.onCreate != nil {
		g.onCreate()
	}
	g.record("CreateWishlist " + name)
	w := model.Wishlist{ID: listID, Name: name}
	g.seed(&model.FullWishlist{Wishlist: w, Sublists: []model.SublistWithItems{}})
	return &w, nil
}

func (g *fakeGateway) GetWishlist(ctx context.Context, id string) (*model.FullWishlist, error) {
	if g.onGet != nil {
		g.onGet(id)
	}
	g.record("GetWishlist " + id)
	if g.getErr != nil {
		return nil, g.getErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lists[id], nil
}

func (g *fakeGateway) RenameWishlist(ctx context.Context, id, name string) error {
	g.record(fmt.Sprintf("RenameWishlist %s %s", id, name))
	return nil
}

func (g *fakeGateway) DeleteWishlist(ctx context.Context, id string) error {
	g.record("DeleteWishlist " + id)
	return nil
}

func (g *fakeGateway) TouchLastAccessed(ctx context.Context, id string) error {
	g.touched <- id
	return nil
}

func (g *fakeGateway) CreateSublist(ctx context.Context, wishlistID, name string, order int) (*model.Sublist, error) {
	g.record(fmt.Sprintf("CreateSublist %s %s %d", wishlistID, name, order))
	return &model.Sublist{ID: 99, WishlistID: wishlistID, Name: name, Order: order}, nil
}

func (g *fakeGateway) RenameSublist(ctx context.Context, id int64, name string) error {
	g.record(fmt.Sprintf("RenameSublist %d %s", id, name))
	return nil
}

func (g *fakeGateway) DeleteSublist(ctx context.Context, id int64) error {
	g.record(fmt.Sprintf("DeleteSublist %d", id))
	return nil
}

func (g *fakeGateway) CreateItem(ctx context.Context, sublistID int64, text string, order int) (*model.Item, error) {
	g.record(fmt.Sprintf("CreateItem %d %s %d", sublistID, text, order))
	return &model.Item{ID: 99, SublistID: sublistID, Text: text, Order: order}, nil
}

func (g *fakeGateway) UpdateItem(ctx context.Context, id int64, patch model.ItemPatch) error {
	g.record(fmt.Sprintf("UpdateItem %d %s", id, *patch.Text))
	return nil
}

func (g *fakeGateway) ClaimItem(ctx context.Context, id int64, name string) error {
	g.record(fmt.Sprintf("ClaimItem %d %s", id, name))
	return nil
}

func (g *fakeGateway) UnclaimItem(ctx context.Context, id int64) error {
	g.record(fmt.Sprintf("UnclaimItem %d", id))
	return nil
}

func (g *fakeGateway) DeleteItem(ctx context.Context, id int64) error {
	g.record(fmt.Sprintf("DeleteItem %d", id))
	return nil
}

func (g *fakeGateway) ImportFromJSON(ctx context.Context, full *model.FullWishlist) (*model.Wishlist, error) {
	g.record("ImportFromJSON " + full.ID)
	w := full.Wishlist
	return &w, nil
}

// fakeRealtime records subscriptions.
type fakeRealtime struct {
	mu        sync.Mutex
	callbacks map[string]realtime.Callbacks
	unsubs    int
}

func (r *fakeRealtime) Subscribe(ctx context.Context, id string, cb realtime.Callbacks) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.callbacks == nil {
		r.callbacks = map[string]realtime.Callbacks{}
	}
	r.callbacks[id] = cb
	return realtime.ChannelName(id), nil
}

func (r *fakeRealtime) UnsubscribeAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = nil
	r.unsubs++
	return nil
}

func (r *fakeRealtime) get(id string) (realtime.Callbacks, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.callbacks[id]
	return cb, ok
}

// fakeView records what the controller shows.
type fakeView struct {
	mu        sync.Mutex
	updates   []Snapshot
	alerts    []string
	notes     []string
	navigated []string
	scripts   []string
}

func (v *fakeView) Update(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates = append(v.updates, s)
}

func (v *fakeView) Alert(m string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, m)
}

func (v *fakeView) Notify(m string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notes = append(v.notes, m)
}

func (v *fakeView) Navigate(p string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.navigated = append(v.navigated, p)
}

func (v *fakeView) RunScript(js string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scripts = append(v.scripts, js)
}

func (v *fakeView) Alerts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.alerts...)
}

func (v *fakeView) last() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.updates) == 0 {
		return Snapshot{}
	}
	return v.updates[len(v.updates)-1]
}

type fakeCopier struct {
	copied string
	script string
}

func (c *fakeCopier) Copy(text string) string {
	c.copied = text
	return c.script
}

type harness struct {
	c      *Controller
	gw     *fakeGateway
	rt     *fakeRealtime
	view   *fakeView
	store  *prefs.Memory
	recent *recent.Cache
	copier *fakeCopier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := prefs.NewMemory()
	h := &harness{
		gw:     newFakeGateway(),
		rt:     &fakeRealtime{},
		view:   &fakeView{},
		store:  store,
		recent: recent.New(store, recent.WithLogger(logger)),
		copier: &fakeCopier{},
	}
	h.c = New(context.Background(), Deps{
		Gateway:  h.gw,
		Realtime: h.rt,
		Recent:   h.recent,
		Language: i18n.NewService(store),
		Theme:    theme.NewService(store, theme.Light),
		Copier:   h.copier,
		History:  router.NewMemoryHistory("/"),
		View:     h.view,
		Logger:   logger,
		Origin:   "http://localhost:3000",
		Now:      func() time.Time { return time.Date(2026, 5, 9, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() { h.c.Router().Wait() })
	return h
}

func giftsList() *model.FullWishlist {
	bob := "Bob"
	return &model.FullWishlist{
		Wishlist: model.Wishlist{ID: listID, Name: "Gifts"},
		Sublists: []model.SublistWithItems{
			{
				Sublist: model.Sublist{ID: 1, WishlistID: listID, Name: "Alice"},
				Items: []model.Item{
					{ID: 10, SublistID: 1, Text: "Book", Claimed: true, ClaimedBy: &bob},
					{ID: 11, SublistID: 1, Text: "Scarf", Order: 1},
				},
			},
			{
				Sublist: model.Sublist{ID: 2, WishlistID: listID, Name: "Carl", Order: 1},
				Items:   []model.Item{},
			},
		},
	}
}

// loaded returns a harness with the Gifts list open.
func loaded(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.gw.seed(giftsList())
	h.c.Load(context.Background(), listID)
	require.Equal(t, ScreenList, h.view.last().Screen)
	return h
}

func TestLoad(t *testing.T) {
	h := loaded(t)

	snap := h.view.last()
	assert.Equal(t, "Gifts", snap.Wishlist.Name)

	r := h.recent.Get()
	require.NotNil(t, r)
	assert.Equal(t, listID, r.UUID)
	assert.Equal(t, "Gifts", r.ListName)

	select {
	case id := <-h.gw.touched:
		assert.Equal(t, listID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("last accessed was not touched")
	}

	_, ok := h.rt.get(listID)
	assert.True(t, ok, "subscribed to the list")
	assert.False(t, h.c.Busy())
}

func TestLoad_NotFound(t *testing.T) {
	h := newHarness(t)

	h.c.Load(context.Background(), listID)
	h.c.Router().Wait()

	assert.Equal(t, []string{"Fel: Önskelistan hittades inte"}, h.view.Alerts())
	assert.Equal(t, []string{"/"}, h.view.navigated)
	assert.Equal(t, ScreenStart, h.view.last().Screen)
	assert.Nil(t, h.recent.Get())
}

func TestLoad_BackendDown(t *testing.T) {
	h := newHarness(t)
	h.gw.getErr = &gateway.Error{Op: "get wishlist", Kind: gateway.KindUnavailable, Err: errors.New("dial tcp: refused")}

	h.c.Load(context.Background(), listID)
	h.c.Router().Wait()

	assert.Equal(t, []string{"Fel: Servern svarar inte"}, h.view.Alerts())
}

func TestRealtimeCallbacks(t *testing.T) {
	h := loaded(t)
	cb, ok := h.rt.get(listID)
	require.True(t, ok)

	gets := h.gw.count("GetWishlist")

	// Inserts and deletes of the wishlist row do not reload.
	cb.OnWishlist(changefeed.Change{Type: changefeed.Delete})
	assert.Equal(t, gets, h.gw.count("GetWishlist"))

	cb.OnWishlist(changefeed.Change{Type: changefeed.Update})
	cb.OnSublist(changefeed.Change{Type: changefeed.Insert})
	cb.OnItem(changefeed.Change{Type: changefeed.Delete})
	assert.Equal(t, gets+3, h.gw.count("GetWishlist"))

	// A rejoined channel catches up with one reload.
	require.NotNil(t, cb.OnResync)
	cb.OnResync()
	assert.Equal(t, gets+4, h.gw.count("GetWishlist"))
}

func TestReload_StaleResultDiscarded(t *testing.T) {
	h := loaded(t)
	cb, _ := h.rt.get(listID)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gw.onGet = func(string) {
		close(entered)
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		cb.OnItem(changefeed.Change{Type: changefeed.Insert})
	}()

	<-entered
	h.gw.onGet = nil
	// The user goes home while the reload is in flight.
	h.c.ShowStart()
	close(release)
	<-done

	assert.Equal(t, ScreenStart, h.view.last().Screen)
	assert.Equal(t, ScreenStart, h.c.Snapshot().Screen)
}

func TestLoad_SupersededByGoingHome(t *testing.T) {
	h := newHarness(t)
	h.gw.seed(giftsList())

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gw.onGet = func(string) {
		close(entered)
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.c.Load(context.Background(), listID)
	}()

	<-entered
	h.gw.onGet = nil
	h.c.ShowStart()
	close(release)
	<-done

	_, subscribed := h.rt.get(listID)
	assert.False(t, subscribed, "left list must not stay subscribed")
	assert.False(t, h.recent.Has(), "left list must not become the recent one")
	assert.Equal(t, ScreenStart, h.view.last().Screen)
	assert.Equal(t, ScreenStart, h.c.Snapshot().Screen)

	select {
	case id := <-h.gw.touched:
		t.Fatalf("left list %s was touched", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCreateWishlist(t *testing.T) {
	h := newHarness(t)

	h.c.CreateWishlist(context.Background(), "  Gifts  ")
	h.c.Router().Wait()

	assert.Equal(t, 1, h.gw.count("CreateWishlist Gifts"))
	assert.Equal(t, []string{"/" + listID}, h.view.navigated)
	assert.Equal(t, ScreenList, h.view.last().Screen, "navigation opened the new list")
	assert.Empty(t, h.view.Alerts())
}

func TestCreateWishlist_EmptyName(t *testing.T) {
	h := newHarness(t)

	h.c.CreateWishlist(context.Background(), "   ")

	assert.Equal(t, []string{"Fel: Ange ett namn på önskelistan"}, h.view.Alerts())
	assert.Zero(t, h.gw.count("CreateWishlist"))
}

func TestInFlightFlag_SingleCall(t *testing.T) {
	h := newHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gw.onCreate = func() {
		close(entered)
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.c.CreateWishlist(context.Background(), "First")
	}()

	<-entered
	assert.True(t, h.c.Busy())

	// A second action while the first is in flight is dropped.
	h.gw.onCreate = nil
	h.c.CreateWishlist(context.Background(), "Second")

	close(release)
	<-done
	h.c.Router().Wait()

	assert.Equal(t, 1, h.gw.count("CreateWishlist"))
	assert.Equal(t, 1, h.gw.count("CreateWishlist First"))
	assert.False(t, h.c.Busy(), "flag is released")
}

func TestAddSublistAndItem_Order(t *testing.T) {
	h := loaded(t)
	ctx := context.Background()

	h.c.AddSublist(ctx, " Dana ")
	h.c.AddItem(ctx, 1, "Hat")
	h.c.AddItem(ctx, 2, "Gloves")
	h.c.AddItem(ctx, 404, "Orphan")

	// Blank input is ignored.
	h.c.AddSublist(ctx, "  ")
	h.c.AddItem(ctx, 1, "")

	calls := h.gw.Calls()
	assert.Contains(t, calls, "CreateSublist "+listID+" Dana 2")
	assert.Contains(t, calls, "CreateItem 1 Hat 2")
	assert.Contains(t, calls, "CreateItem 2 Gloves 0")
	assert.Contains(t, calls, "CreateItem 404 Orphan 0")
	assert.Equal(t, 1, h.gw.count("CreateSublist"))
	assert.Equal(t, 3, h.gw.count("CreateItem"))
}

func TestItemActions(t *testing.T) {
	h := loaded(t)
	ctx := context.Background()

	h.c.EditItem(ctx, 11, " Red scarf ")
	h.c.DeleteItem(ctx, 10)
	h.c.RenameSublist(ctx, 2, "Carla")
	h.c.DeleteSublist(ctx, 2)

	calls := h.gw.Calls()
	assert.Contains(t, calls, "UpdateItem 11 Red scarf")
	assert.Contains(t, calls, "DeleteItem 10")
	assert.Contains(t, calls, "RenameSublist 2 Carla")
	assert.Contains(t, calls, "DeleteSublist 2")
	assert.Empty(t, h.view.Alerts())
}

func TestToggleClaim(t *testing.T) {
	tests := []struct {
		name      string
		itemID    int64
		claimant  string
		wantCall  string
		wantAlert string
	}{
		{name: "claim", itemID: 11, claimant: " Eve ", wantCall: "ClaimItem 11 Eve"},
		{name: "unclaim", itemID: 10, wantCall: "UnclaimItem 10"},
		{name: "claim without name", itemID: 11, claimant: "  ", wantAlert: "Fel: Ange vem som paxar önskningen"},
		{name: "unknown item", itemID: 999, claimant: "Eve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := loaded(t)
			h.c.ToggleClaim(context.Background(), tt.itemID, tt.claimant)

			claimCalls := h.gw.count("ClaimItem") + h.gw.count("UnclaimItem")
			if tt.wantCall != "" {
				assert.Contains(t, h.gw.Calls(), tt.wantCall)
				assert.Equal(t, 1, claimCalls)
			} else {
				assert.Zero(t, claimCalls)
			}
			if tt.wantAlert != "" {
				assert.Equal(t, []string{tt.wantAlert}, h.view.Alerts())
			} else {
				assert.Empty(t, h.view.Alerts())
			}
			assert.False(t, h.c.Busy())
		})
	}
}

func TestRenameWishlist(t *testing.T) {
	h := loaded(t)

	h.c.RenameWishlist(context.Background(), "Presents")
	assert.Contains(t, h.gw.Calls(), "RenameWishlist "+listID+" Presents")
	assert.Equal(t, "Presents", h.recent.Get().ListName)

	h.c.RenameWishlist(context.Background(), "")
	assert.Equal(t, []string{"Fel: Ange ett namn på önskelistan"}, h.view.Alerts())
}

func TestDeleteWishlist(t *testing.T) {
	h := loaded(t)

	h.c.DeleteWishlist(context.Background())
	h.c.Router().Wait()

	assert.Contains(t, h.gw.Calls(), "DeleteWishlist "+listID)
	assert.Nil(t, h.recent.Get(), "recent entry for the deleted list is cleared")
	assert.Equal(t, []string{"/"}, h.view.navigated)
	assert.Equal(t, ScreenStart, h.view.last().Screen)
}

func TestImport(t *testing.T) {
	t.Run("cancelled is silent", func(t *testing.T) {
		h := newHarness(t)
		h.c.Import(context.Background(), nil)
		assert.Empty(t, h.view.Alerts())
		assert.Zero(t, h.gw.count("ImportFromJSON"))
	})

	t.Run("invalid file", func(t *testing.T) {
		h := newHarness(t)
		h.c.Import(context.Background(), strings.NewReader("not json"))
		assert.Equal(t, []string{"Fel: Filen är inte en giltig önskelista"}, h.view.Alerts())
		assert.False(t, h.c.Busy())
	})

	t.Run("opens imported list", func(t *testing.T) {
		h := newHarness(t)
		h.gw.seed(giftsList())
		h.c.Import(context.Background(), strings.NewReader(`{"id":"`+listID+`","name":"Gifts","sublists":[]}`))
		h.c.Router().Wait()

		assert.Contains(t, h.gw.Calls(), "ImportFromJSON "+listID)
		assert.Equal(t, []string{"/" + listID}, h.view.navigated)
		assert.Equal(t, ScreenList, h.view.last().Screen)
	})
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	_, _, ok := h.c.Export()
	assert.False(t, ok, "nothing open")

	h = loaded(t)
	name, data, ok := h.c.Export()
	require.True(t, ok)
	assert.Equal(t, "wishlist-Gifts-2026-05-09.json", name)
	assert.Contains(t, string(data), `"claimed_by": "Bob"`)
}

func TestShare(t *testing.T) {
	h := loaded(t)

	url := h.c.Share()
	assert.Equal(t, "http://localhost:3000/"+listID, url)
	assert.Equal(t, url, h.copier.copied)
	assert.Equal(t, []string{"Kopierat till urklipp!"}, h.view.notes)
	assert.Empty(t, h.view.scripts)

	h.copier.script = "copy()"
	h.c.Share()
	assert.Equal(t, []string{"copy()"}, h.view.scripts)
}

func TestContinueRecent(t *testing.T) {
	h := newHarness(t)
	h.gw.seed(giftsList())

	// Nothing remembered yet.
	h.c.ContinueRecent()
	assert.Empty(t, h.view.navigated)

	require.NoError(t, h.recent.Save(listID, "Gifts"))
	h.c.ContinueRecent()
	h.c.Router().Wait()

	assert.Equal(t, []string{"/" + listID}, h.view.navigated)
	assert.Equal(t, ScreenList, h.view.last().Screen)
}

func TestGoHome(t *testing.T) {
	h := loaded(t)

	h.c.GoHome(context.Background())
	h.c.Router().Wait()

	assert.Positive(t, h.rt.unsubs)
	snap := h.view.last()
	assert.Equal(t, ScreenStart, snap.Screen)
	require.NotNil(t, snap.Recent, "start view offers the recent list")
	assert.Equal(t, listID, snap.Recent.UUID)
}

func TestSetLanguage_Rerenders(t *testing.T) {
	h := loaded(t)

	h.c.SetLanguage(i18n.English)
	snap := h.view.last()
	assert.Equal(t, i18n.English, snap.Language)
	assert.Equal(t, "Error", snap.T.ErrorPrefix)

	h.c.CreateWishlist(context.Background(), "")
	assert.Equal(t, []string{"Error: Please enter a wishlist name"}, h.view.Alerts())
}

func TestSetTheme(t *testing.T) {
	h := newHarness(t)
	h.c.SetTheme(theme.Dark)
	assert.Equal(t, theme.Dark, h.view.last().Theme)
	v, _ := h.store.Get(prefs.KeyTheme)
	assert.Equal(t, "dark", v)
}

func TestRouterNotFound_GoesHome(t *testing.T) {
	h := newHarness(t)

	h.c.Router().Navigate("/nope")
	h.c.Router().Wait()

	assert.Equal(t, []string{"/"}, h.view.navigated)
	assert.Equal(t, "/", h.c.Router().CurrentPath())
}
