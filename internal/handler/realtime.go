package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/wishlist/internal/changefeed"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 25 * time.Second
	pongWait     = 2 * pingInterval
)

// RealtimeHandler serves the change-feed websocket.
//
// PROTOCOL:
// The client sends {"type":"join","channel":…,"bindings":[…]} and receives
// {"type":"joined"}; from then on every matching row change arrives as
// {"type":"change","binding":i,"change":{…}}. {"type":"leave"} ends the
// session. The server pings every pingInterval and drops connections that
// stop answering.
type RealtimeHandler struct {
	hub      *changefeed.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRealtimeHandler creates a RealtimeHandler on hub.
func NewRealtimeHandler(hub *changefeed.Hub, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API key, not the origin, decides who may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleWebsocket handles GET /realtime/v1/websocket.
func (h *RealtimeHandler) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	h.serve(conn, r.URL.Query().Get("channel"))
}

// serve owns conn's writes. A separate goroutine owns its reads; gorilla
// allows at most one of each at a time.
func (h *RealtimeHandler) serve(conn *websocket.Conn, defaultChannel string) {
	done := make(chan struct{})
	defer close(done)

	incoming := make(chan changefeed.ClientMessage)
	readErr := make(chan error, 1)

	conn.SetReadLimit(64 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		for {
			var msg changefeed.ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- msg:
			case <-done:
				return
			}
		}
	}()

	var (
		sub     *changefeed.Subscription
		channel string
	)
	defer func() {
		if sub != nil {
			sub.Close()
		}
	}()

	send := func(msg changefeed.ServerMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("websocket write failed", slog.String("error", err.Error()))
			return false
		}
		return true
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var deliveries <-chan changefeed.Delivery
		if sub != nil {
			deliveries = sub.C
		}

		select {
		case msg := <-incoming:
			switch msg.Type {
			case changefeed.MsgJoin:
				if sub != nil {
					sub.Close()
					sub = nil
				}
				next, err := h.hub.Subscribe(msg.Bindings)
				if err != nil {
					if !send(changefeed.ServerMessage{Type: changefeed.MsgError, Message: err.Error()}) {
						return
					}
					continue
				}
				sub = next
				channel = msg.Channel
				if channel == "" {
					channel = defaultChannel
				}
				h.logger.Debug("realtime channel joined",
					slog.String("channel", channel),
					slog.Int("bindings", len(msg.Bindings)),
				)
				if !send(changefeed.ServerMessage{Type: changefeed.MsgJoined, Channel: channel}) {
					return
				}

			case changefeed.MsgLeave:
				h.logger.Debug("realtime channel left", slog.String("channel", channel))
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "left"))
				return

			default:
				if !send(changefeed.ServerMessage{Type: changefeed.MsgError, Message: "unknown message type " + msg.Type}) {
					return
				}
			}

		case d, ok := <-deliveries:
			if !ok {
				return
			}
			change := d.Change
			if !send(changefeed.ServerMessage{
				Type:    changefeed.MsgChange,
				Channel: channel,
				Binding: d.Binding,
				Change:  &change,
			}) {
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}

		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}
	}
}
