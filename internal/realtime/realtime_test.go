package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/wishlist/internal/changefeed"
	"github.com/sakif/wishlist/internal/config"
	"github.com/sakif/wishlist/internal/gateway"
	"github.com/sakif/wishlist/internal/server"
)

// newBackend runs the real backend and returns a realtime client and a
// gateway for making writes.
func newBackend(t *testing.T) (*Client, *gateway.Client) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(config.Server{
		DBPath:          ":memory:",
		CleanupInterval: time.Hour,
		Retention:       90 * 24 * time.Hour,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	rt, err := New(ts.URL, "", WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { rt.UnsubscribeAll(context.Background()) })

	return rt, gateway.New(ts.URL, "", gateway.WithLogger(logger))
}

func collect(ch chan changefeed.Change) Handler {
	return func(c changefeed.Change) { ch <- c }
}

func next(t *testing.T, ch chan changefeed.Change) changefeed.Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return changefeed.Change{}
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "wishlist:abc", ChannelName("abc"))
}

func TestNew_URLScheme(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8080", want: "ws://localhost:8080/realtime/v1/websocket"},
		{base: "https://example.com/", want: "wss://example.com/realtime/v1/websocket"},
		{base: "ws://host", want: "ws://host/realtime/v1/websocket"},
		{base: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c, err := New(tt.base, "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.wsURL)
		})
	}
}

func TestSubscribe_DeliversMatchingChanges(t *testing.T) {
	rt, gw := newBackend(t)
	ctx := context.Background()

	w, err := gw.CreateWishlist(ctx, "Gifts")
	require.NoError(t, err)
	other, err := gw.CreateWishlist(ctx, "Other")
	require.NoError(t, err)

	wishlists := make(chan changefeed.Change, 8)
	sublists := make(chan changefeed.Change, 8)
	items := make(chan changefeed.Change, 8)

	name, err := rt.Subscribe(ctx, w.ID, Callbacks{
		OnWishlist: collect(wishlists),
		OnSublist:  collect(sublists),
		OnItem:     collect(items),
	})
	require.NoError(t, err)
	assert.Equal(t, "wishlist:"+w.ID, name)

	// A sublist of another wishlist must not reach this channel.
	_, err = gw.CreateSublist(ctx, other.ID, "Elsewhere", 0)
	require.NoError(t, err)
	sub, err := gw.CreateSublist(ctx, w.ID, "Alice", 0)
	require.NoError(t, err)

	c := next(t, sublists)
	assert.Equal(t, changefeed.Insert, c.Type)
	assert.Equal(t, "Alice", c.New["name"])

	require.NoError(t, gw.RenameWishlist(ctx, w.ID, "Presents"))
	c = next(t, wishlists)
	assert.Equal(t, changefeed.Update, c.Type)
	assert.Equal(t, "Presents", c.New["name"])

	_, err = gw.CreateItem(ctx, sub.ID, "Book", 0)
	require.NoError(t, err)
	c = next(t, items)
	assert.Equal(t, changefeed.TableItems, c.Table)
	assert.Equal(t, "Book", c.New["text"])
}

func TestSubscribe_OnlyBindsSetCallbacks(t *testing.T) {
	rt, gw := newBackend(t)
	ctx := context.Background()

	w, err := gw.CreateWishlist(ctx, "Gifts")
	require.NoError(t, err)

	items := make(chan changefeed.Change, 8)
	_, err = rt.Subscribe(ctx, w.ID, Callbacks{OnItem: collect(items)})
	require.NoError(t, err)

	sub, err := gw.CreateSublist(ctx, w.ID, "Alice", 0)
	require.NoError(t, err)
	_, err = gw.CreateItem(ctx, sub.ID, "Book", 0)
	require.NoError(t, err)

	// The sublist insert came first; only the item reaches the item callback.
	c := next(t, items)
	assert.Equal(t, changefeed.TableItems, c.Table)
}

func TestSubscribe_ReplacesSameChannel(t *testing.T) {
	rt, gw := newBackend(t)
	ctx := context.Background()

	w, err := gw.CreateWishlist(ctx, "Gifts")
	require.NoError(t, err)

	first := make(chan changefeed.Change, 8)
	second := make(chan changefeed.Change, 8)

	_, err = rt.Subscribe(ctx, w.ID, Callbacks{OnSublist: collect(first)})
	require.NoError(t, err)
	_, err = rt.Subscribe(ctx, w.ID, Callbacks{OnSublist: collect(second)})
	require.NoError(t, err)

	assert.Equal(t, []string{ChannelName(w.ID)}, rt.ActiveChannels())

	_, err = gw.CreateSublist(ctx, w.ID, "Alice", 0)
	require.NoError(t, err)

	next(t, second)
	assert.Empty(t, first)
}

func TestUnsubscribe(t *testing.T) {
	rt, gw := newBackend(t)
	ctx := context.Background()

	w, err := gw.CreateWishlist(ctx, "Gifts")
	require.NoError(t, err)

	name, err := rt.Subscribe(ctx, w.ID, Callbacks{OnSublist: func(changefeed.Change) {}})
	require.NoError(t, err)

	require.NoError(t, rt.Unsubscribe(ctx, name))
	assert.Empty(t, rt.ActiveChannels())

	// Unknown names are ignored.
	assert.NoError(t, rt.Unsubscribe(ctx, "wishlist:missing"))
}

func TestUnsubscribeAll(t *testing.T) {
	rt, gw := newBackend(t)
	ctx := context.Background()

	var names []string
	for _, n := range []string{"A", "B", "C"} {
		w, err := gw.CreateWishlist(ctx, n)
		require.NoError(t, err)
		name, err := rt.Subscribe(ctx, w.ID, Callbacks{OnWishlist: func(changefeed.Change) {}})
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Len(t, rt.ActiveChannels(), 3)
	assert.ElementsMatch(t, names, rt.ActiveChannels())

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, rt.UnsubscribeAll(ctx))
	assert.Empty(t, rt.ActiveChannels())
}

func TestSubscribe_Unreachable(t *testing.T) {
	rt, err := New("http://127.0.0.1:1", "")
	require.NoError(t, err)

	_, err = rt.Subscribe(context.Background(), "abc", Callbacks{})
	assert.Error(t, err)
	assert.Empty(t, rt.ActiveChannels())
}

// feed is a bare change-feed endpoint whose connections the test controls.
type feed struct {
	up    atomic.Bool
	joins chan changefeed.ClientMessage
	conns chan *websocket.Conn
}

func newFeed(t *testing.T) (*feed, *httptest.Server) {
	t.Helper()
	f := &feed{
		joins: make(chan changefeed.ClientMessage, 16),
		conns: make(chan *websocket.Conn, 16),
	}
	f.up.Store(true)

	var upgrader websocket.Upgrader
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.up.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var join changefeed.ClientMessage
		if err := conn.ReadJSON(&join); err != nil {
			conn.Close()
			return
		}
		conn.WriteJSON(changefeed.ServerMessage{Type: changefeed.MsgJoined, Channel: join.Channel})
		f.joins <- join
		f.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return f, ts
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func newFeedClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	rt, err := New(ts.URL, "",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithReconnectBackoff(10*time.Millisecond, 40*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { rt.UnsubscribeAll(context.Background()) })
	return rt
}

func TestSubscribe_RejoinsAfterDrop(t *testing.T) {
	f, ts := newFeed(t)
	rt := newFeedClient(t, ts)

	items := make(chan changefeed.Change, 4)
	resynced := make(chan struct{}, 4)
	_, err := rt.Subscribe(context.Background(), "w1", Callbacks{
		OnItem:   collect(items),
		OnResync: func() { resynced <- struct{}{} },
	})
	require.NoError(t, err)

	first := recv(t, f.joins)
	conn := recv(t, f.conns)

	// The backend goes away for a while.
	f.up.Store(false)
	conn.Close()
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, resynced, "nothing to resync while down")
	assert.Equal(t, []string{"wishlist:w1"}, rt.ActiveChannels())

	f.up.Store(true)
	second := recv(t, f.joins)
	assert.Equal(t, first, second, "rejoins with the same bindings")
	conn = recv(t, f.conns)
	recv(t, resynced)

	require.NoError(t, conn.WriteJSON(changefeed.ServerMessage{
		Type:    changefeed.MsgChange,
		Channel: "wishlist:w1",
		Binding: 0,
		Change:  &changefeed.Change{Table: changefeed.TableItems, Type: changefeed.Insert},
	}))
	c := next(t, items)
	assert.Equal(t, changefeed.Insert, c.Type)
}

func TestUnsubscribe_WhileReconnecting(t *testing.T) {
	f, ts := newFeed(t)
	rt := newFeedClient(t, ts)

	name, err := rt.Subscribe(context.Background(), "w1", Callbacks{OnItem: func(changefeed.Change) {}})
	require.NoError(t, err)
	recv(t, f.joins)
	conn := recv(t, f.conns)

	f.up.Store(false)
	conn.Close()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Unsubscribe(ctx, name))
	assert.Empty(t, rt.ActiveChannels())

	// No rejoin after the channel is gone.
	f.up.Store(true)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, f.joins)
}

func TestSubscribe_ConcurrentSameWishlist(t *testing.T) {
	f, ts := newFeed(t)
	rt := newFeedClient(t, ts)

	const n = 5
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.Subscribe(context.Background(), "w1", Callbacks{OnItem: func(changefeed.Change) {}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"wishlist:w1"}, rt.ActiveChannels())

	// Exactly one socket is still open; the others were closed by the client.
	open := 0
	for range n {
		conn := recv(t, f.conns)
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					open++
				}
				break
			}
		}
		conn.Close()
	}
	assert.Equal(t, 1, open)
}
