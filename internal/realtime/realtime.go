// Package realtime keeps the client subscribed to a wishlist's row changes.
//
// Each logical channel ("wishlist:<id>") is its own websocket to the
// backend's change feed with its own reader goroutine. Callbacks receive the
// raw change and run on that goroutine; they typically just trigger a full
// reload, so no diffing happens here.
//
// A dropped connection is redialled with exponential backoff and the channel
// rejoined with the same bindings. Changes made while it was down are not
// replayed; OnResync tells the subscriber to catch up.
//
// A callback must not Unsubscribe its own channel: Unsubscribe waits for the
// reader goroutine, which is busy running the callback.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/wishlist/internal/changefeed"
)

const (
	writeWait   = 5 * time.Second
	dialTimeout = 10 * time.Second

	defaultBackoffMin = 500 * time.Millisecond
	defaultBackoffMax = 30 * time.Second
)

// Handler receives one change.
type Handler func(changefeed.Change)

// Callbacks selects what a subscription listens to. Only non-nil callbacks
// get a binding on the server.
type Callbacks struct {
	OnWishlist Handler // the wishlist row itself
	OnSublist  Handler // sublists of the wishlist
	OnItem     Handler // all items; items carry no wishlist id to filter on

	// OnResync runs after the channel rejoined following a dropped
	// connection. Changes made in between were missed.
	OnResync func()
}

// ChannelName is the channel a wishlist's subscription is known by.
func ChannelName(wishlistID string) string {
	return "wishlist:" + wishlistID
}

// Client manages the open channels.
type Client struct {
	wsURL  string
	apiKey string
	dialer *websocket.Dialer
	logger *slog.Logger

	backoffMin time.Duration
	backoffMax time.Duration

	mu       sync.Mutex
	channels map[string]*channel
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithReconnectBackoff sets the first and the longest wait between
// reconnect attempts.
func WithReconnectBackoff(first, longest time.Duration) Option {
	return func(c *Client) {
		c.backoffMin = first
		c.backoffMax = longest
	}
}

// New creates a Client for the backend at baseURL (http or https); the
// websocket URL is derived from it.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("realtime: parsing backend URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("realtime: unsupported URL scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"

	c := &Client{
		wsURL:      u.String(),
		apiKey:     apiKey,
		dialer:     &websocket.Dialer{HandshakeTimeout: dialTimeout},
		logger:     slog.Default(),
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
		channels:   map[string]*channel{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// channel is one live subscription.
type channel struct {
	name     string
	bindings []changefeed.Binding
	handlers []Handler
	onResync func()

	// ctx is cancelled when the channel is closed; it stops reconnecting.
	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool
	done    chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func (ch *channel) current() *websocket.Conn {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn
}

// replace installs a reconnected socket unless the channel is closing.
func (ch *channel) replace(conn *websocket.Conn) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closing.Load() {
		return false
	}
	ch.conn = conn
	return true
}

// Subscribe opens the channel for wishlistID and returns its name. An
// existing subscription under the same name is torn down, so there is at
// most one per wishlist even when Subscribe races with itself.
func (c *Client) Subscribe(ctx context.Context, wishlistID string, cb Callbacks) (string, error) {
	name := ChannelName(wishlistID)

	if err := c.Unsubscribe(ctx, name); err != nil {
		c.logger.Warn("failed to close previous subscription",
			slog.String("channel", name),
			slog.String("error", err.Error()),
		)
	}

	var (
		bindings []changefeed.Binding
		handlers []Handler
	)
	if cb.OnWishlist != nil {
		bindings = append(bindings, changefeed.Binding{Table: changefeed.TableWishlists, Filter: "id=eq." + wishlistID})
		handlers = append(handlers, cb.OnWishlist)
	}
	if cb.OnSublist != nil {
		bindings = append(bindings, changefeed.Binding{Table: changefeed.TableSublists, Filter: "wishlist_id=eq." + wishlistID})
		handlers = append(handlers, cb.OnSublist)
	}
	if cb.OnItem != nil {
		bindings = append(bindings, changefeed.Binding{Table: changefeed.TableItems})
		handlers = append(handlers, cb.OnItem)
	}

	conn, err := c.connect(ctx, name, bindings)
	if err != nil {
		return "", err
	}

	chCtx, cancel := context.WithCancel(context.Background())
	ch := &channel{
		name:     name,
		bindings: bindings,
		handlers: handlers,
		onResync: cb.OnResync,
		ctx:      chCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		conn:     conn,
	}

	c.mu.Lock()
	prev := c.channels[name]
	c.channels[name] = ch
	c.mu.Unlock()

	go c.read(ch)

	// A concurrent Subscribe for the same wishlist got in first.
	if prev != nil {
		if err := prev.close(ctx); err != nil {
			c.logger.Warn("failed to close previous subscription",
				slog.String("channel", name),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Debug("realtime channel subscribed",
		slog.String("channel", name),
		slog.Int("bindings", len(bindings)),
	)
	return name, nil
}

// connect dials the change feed and joins channel name.
func (c *Client) connect(ctx context.Context, name string, bindings []changefeed.Binding) (*websocket.Conn, error) {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("apikey", c.apiKey)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL+"?channel="+url.QueryEscape(name), header)
	if err != nil {
		return nil, fmt.Errorf("realtime: connecting %s: %w", name, err)
	}

	if err := c.join(ctx, conn, name, bindings); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// join sends the join message and waits for the server's acknowledgement.
func (c *Client) join(ctx context.Context, conn *websocket.Conn, name string, bindings []changefeed.Binding) error {
	deadline := time.Now().Add(dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(changefeed.ClientMessage{
		Type:     changefeed.MsgJoin,
		Channel:  name,
		Bindings: bindings,
	}); err != nil {
		return fmt.Errorf("realtime: joining %s: %w", name, err)
	}

	conn.SetReadDeadline(deadline)
	var reply changefeed.ServerMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("realtime: waiting for join of %s: %w", name, err)
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	if reply.Type != changefeed.MsgJoined {
		return fmt.Errorf("realtime: join of %s rejected: %s", name, reply.Message)
	}
	return nil
}

// read dispatches incoming changes until the channel is closed, rejoining
// whenever the connection drops.
func (c *Client) read(ch *channel) {
	defer close(ch.done)

	for {
		err := c.dispatch(ch, ch.current())
		if ch.closing.Load() {
			return
		}
		c.logger.Warn("realtime channel dropped, reconnecting",
			slog.String("channel", ch.name),
			slog.String("error", err.Error()),
		)
		if !c.reconnect(ch) {
			return
		}
		if ch.onResync != nil {
			ch.onResync()
		}
	}
}

// dispatch reads conn until it fails.
func (c *Client) dispatch(ch *channel, conn *websocket.Conn) error {
	for {
		var msg changefeed.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case changefeed.MsgChange:
			if ch.closing.Load() || msg.Change == nil {
				continue
			}
			if msg.Binding < 0 || msg.Binding >= len(ch.handlers) {
				c.logger.Warn("change for unknown binding",
					slog.String("channel", ch.name),
					slog.Int("binding", msg.Binding),
				)
				continue
			}
			ch.handlers[msg.Binding](*msg.Change)
		case changefeed.MsgError:
			c.logger.Warn("realtime server error",
				slog.String("channel", ch.name),
				slog.String("message", msg.Message),
			)
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// channel is closed. It reports whether the channel is live again.
func (c *Client) reconnect(ch *channel) bool {
	delay := c.backoffMin
	for attempt := 1; ; attempt++ {
		select {
		case <-ch.ctx.Done():
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(ch.ctx, dialTimeout)
		conn, err := c.connect(ctx, ch.name, ch.bindings)
		cancel()
		if err != nil {
			c.logger.Debug("realtime reconnect failed",
				slog.String("channel", ch.name),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			delay = min(delay*2, c.backoffMax)
			continue
		}

		if !ch.replace(conn) {
			conn.Close()
			return false
		}
		c.logger.Info("realtime channel rejoined",
			slog.String("channel", ch.name),
			slog.Int("attempt", attempt),
		)
		return true
	}
}

// close says goodbye to the server, closes the socket and waits for the
// reader goroutine to exit.
func (ch *channel) close(ctx context.Context) error {
	if ch.closing.Swap(true) {
		return nil
	}
	ch.cancel()

	// The server may already be gone; a failed leave only means there is
	// nobody left to tell. The reader never writes, so this is the only writer.
	conn := ch.current()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(changefeed.ClientMessage{Type: changefeed.MsgLeave, Channel: ch.name})
	conn.Close()

	select {
	case <-ch.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("realtime: closing %s: %w", ch.name, ctx.Err())
	}
}

// Unsubscribe closes the named channel. Unknown names are a no-op.
func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	c.mu.Lock()
	ch, ok := c.channels[name]
	delete(c.channels, name)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return ch.close(ctx)
}

// UnsubscribeAll closes every channel concurrently and waits for all of them.
func (c *Client) UnsubscribeAll(ctx context.Context) error {
	c.mu.Lock()
	open := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		open = append(open, ch)
	}
	c.channels = map[string]*channel{}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range open {
		g.Go(func() error { return ch.close(gctx) })
	}
	return g.Wait()
}

// ActiveChannels lists the open channel names, sorted.
func (c *Client) ActiveChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
