package uncivserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/K4zoku/unciv-server-cf/internal/wswriter"
	"github.com/K4zoku/unciv-server-cf/message"
)

// Error messages sent to clients, spelled the way the original relay
// spelled them.
const (
	errNotSubscribed = "You are not subscribed to this channel!"
	errInvalidGameID = "Invalid or missing gameId"
	errUnknownType   = "Unknown message type"
	errMalformed     = "Malformed message"
)

// Handler defines the method required for a server to handle a send or
// receive of a Msg over a connection.
type Handler interface {
	Handle(context.Context, *Conn, message.Msg)
}

// HandlerFunc is a function signature that implements the Handler
// interface.
type HandlerFunc func(context.Context, *Conn, message.Msg)

// Handle implements Handler for the HandlerFunc by calling the
// function itself.
func (h HandlerFunc) Handle(ctx context.Context, c *Conn, m message.Msg) {
	h(ctx, c, m)
}

func saveMsgMetrics(vars expvarMap, m message.Msg) {
	vars.Add("Msgs", 1)
	if m.Type().IsRead() {
		vars.Add("MsgsRead", 1)
	}
	if m.Type().IsWrite() {
		vars.Add("MsgsWrite", 1)
	}
	vars.Add("Msgs"+m.Type().String(), 1)
}

// expvarMap is the subset of *expvar.Map used by ProcessMsg, so the
// no-op path doesn't need a nil check at every counter.
type expvarMap interface {
	Add(key string, delta int64)
}

type noopVars struct{}

func (noopVars) Add(string, int64) {}

// ProcessMsg implements the standard message processing.
//
// For requests (client-sent messages), it mutates or queries the
// registry and emits the acknowledgement or error replies of the chat
// protocol: join and leave update the connection's subscription set,
// chat broadcasts the payload to every connection subscribed to the
// target game channel, including the sender if it is itself
// subscribed. Protocol errors are reported to the offending connection
// only; the connection remains usable.
//
// For responses (server-sent messages), it marshals the message and
// sends it to the client. If a write to the connection fails, that
// connection is closed and the write error is stored as CloseErr on
// the connection (unless an earlier error already caused the
// connection to close). A failed delivery of a broadcast never affects
// delivery to the remaining recipients.
//
// When a custom Handler is set on the Server, it should at some
// point call ProcessMsg so the expected behaviour happens.
func ProcessMsg(c *Conn, m message.Msg) {
	var vars expvarMap = noopVars{}
	if c.srv.Vars != nil {
		vars = c.srv.Vars
	}
	saveMsgMetrics(vars, m)

	switch m := m.(type) {
	case *message.Join:
		set := c.srv.Registry.Subscribe(c, m.GameIDs)
		c.Send(message.NewJoinSuccess(set))

	case *message.Leave:
		set, ok := c.srv.Registry.Unsubscribe(c, m.GameIDs)
		if !ok {
			// no registry entry, nothing to acknowledge
			return
		}
		c.Send(message.NewLeaveSuccess(set))

	case *message.Chat:
		if !m.ValidGameID() {
			c.Send(message.NewError(errInvalidGameID))
			return
		}
		reg := c.srv.Registry
		if !reg.IsSubscribed(c, m.GameID) {
			c.Send(message.NewError(errNotSubscribed))
			return
		}

		ev := message.NewChatEvent(m)
		recipients := reg.SubscribersOf(m.GameID)
		for _, rc := range recipients {
			// a failed send closes only that recipient's connection
			rc.Send(ev)
		}
		vars.Add("ChatBroadcasts", 1)
		vars.Add("ChatDeliveries", int64(len(recipients)))

	case *message.Success, *message.ChatEvent, *message.Error:
		doWrite(c, m, vars)

	default:
		vars.Add("MsgsUnknown", 1)
	}
}

func doWrite(c *Conn, m message.Msg, vars expvarMap) {
	if err := writeMsg(c, m); err != nil {
		switch err {
		case wswriter.ErrWriteLockTimeout:
			vars.Add("WriteLockTimeouts", 1)
			c.Close(err)

		case wswriter.ErrWriteLimitExceeded:
			vars.Add("WriteLimitExceeded", 1)
			c.Close(err)

		default:
			// client may be gone
			c.Close(err)
		}
	}
}

func writeMsg(c *Conn, m message.Msg) error {
	w := c.Writer(c.srv.AcquireWriteLockTimeout)
	defer w.Close()

	lw := io.Writer(w)
	if l := c.srv.WriteLimit; l > 0 {
		lw = wswriter.Limit(w, l)
	}
	return json.NewEncoder(lw).Encode(m)
}
