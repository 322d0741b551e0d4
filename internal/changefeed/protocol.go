package changefeed

// Websocket message types. Both the server's realtime endpoint and the
// client's realtime package speak these.
const (
	MsgJoin   = "join"
	MsgLeave  = "leave"
	MsgJoined = "joined"
	MsgChange = "change"
	MsgError  = "error"
)

// ClientMessage is sent by a subscriber. A join replaces any earlier join on
// the same connection.
type ClientMessage struct {
	Type     string    `json:"type"`
	Channel  string    `json:"channel,omitempty"`
	Bindings []Binding `json:"bindings,omitempty"`
}

// ServerMessage is sent to a subscriber.
type ServerMessage struct {
	Type    string  `json:"type"`
	Channel string  `json:"channel,omitempty"`
	Binding int     `json:"binding"`
	Change  *Change `json:"change,omitempty"`
	Message string  `json:"message,omitempty"`
}
