package uncivserver

import (
	"expvar"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server serves chat channel connections. Once a websocket handshake
// has been established over a standard HTTP server, the connection can
// get served by calling Server.ServeConn.
//
// The fields should not be updated once a server has started
// serving connections.
type Server struct {
	// ReadLimit defines the maximum size, in bytes, of incoming
	// messages. If a client sends a message that exceeds this limit,
	// the connection is closed. The default of 0 means no limit.
	ReadLimit int64

	// ReadTimeout is the timeout to read an incoming message. It is
	// set on the websocket connection with SetReadDeadline before
	// reading each message. The default of 0 means no timeout.
	ReadTimeout time.Duration

	// WriteLimit defines the maximum size, in bytes, of outgoing
	// messages. If a message exceeds this limit, the connection is
	// closed. The default of 0 means no limit.
	WriteLimit int64

	// WriteTimeout is the timeout to write an outgoing message. It is
	// set on the websocket connection with SetWriteDeadline before
	// writing each message. The default of 0 means no timeout.
	WriteTimeout time.Duration

	// AcquireWriteLockTimeout is the time to wait for the exclusive
	// write lock for a connection. If the lock cannot be acquired
	// before the timeout, the connection is dropped. The default of
	// 0 means no timeout.
	AcquireWriteLockTimeout time.Duration

	// ConnState specifies an optional callback function that is called
	// when a connection changes state. If non-nil, it is called for
	// Accepting, Connected and Closing states. Closing means closing
	// the chat connection, the underlying websocket connection may stay
	// connected.
	//
	// The possible state transitions are:
	//
	//     Accepting -> Closing (if the server failed to setup the connection)
	//     Accepting -> Connected
	//     Connected -> Closing
	ConnState func(*Conn, ConnState)

	// Handler is the handler that is called when a message is
	// processed. The ProcessMsg function is called if the default
	// nil value is set. If a custom handler is set, it is assumed
	// that it will call ProcessMsg at some point, or otherwise
	// manually process the messages.
	Handler Handler

	// Registry is the process-local connection registry that holds the
	// subscription state for every served connection. It must be set
	// before the Server can be used, and a single registry should be
	// shared by all connections of the process.
	Registry *Registry

	// LogFunc is the function to call to log events. If nil,
	// log.Printf is used. It can be set to DiscardLog to disable
	// logging.
	LogFunc func(string, ...interface{})

	// Vars can be set to an *expvar.Map to collect metrics about the
	// server.
	Vars *expvar.Map
}

// DiscardLog is a no-op logging function that can be used as
// Server.LogFunc to disable logging.
var DiscardLog = func(_ string, _ ...interface{}) {}

func (srv *Server) logf(f string, args ...interface{}) {
	if srv.LogFunc != nil {
		srv.LogFunc(f, args...)
		return
	}
	log.Printf(f, args...)
}

// ServeConn serves the websocket connection as a chat channel
// connection. It blocks until the chat connection is closed, leaving
// the websocket connection open.
func (srv *Server) ServeConn(conn *websocket.Conn) {
	if srv.Vars != nil {
		srv.Vars.Add("ActiveConns", 1)
		srv.Vars.Add("TotalConns", 1)
		defer srv.Vars.Add("ActiveConns", -1)
	}

	conn.SetReadLimit(srv.ReadLimit)
	c := newConn(conn, srv)

	// start lifecycle - Accepting, and ensure Closing is called on exit
	if cs := srv.ConnState; cs != nil {
		defer func() {
			cs(c, Closing)
		}()
		cs(c, Accepting)
	}

	// the registry entry exists for exactly as long as the connection
	// is usable; Conn.Close removes it.
	srv.Registry.Register(c)

	// switch to connected state
	if cs := srv.ConnState; cs != nil {
		cs(c, Connected)
	}

	go c.receive()

	kill := c.CloseNotify()
	<-kill
}

// Upgrade returns an http.Handler that upgrades connections to
// the websocket protocol using upgrader.
//
// Once connected, the websocket connection is served via srv.ServeConn.
// The websocket connection is closed when the chat connection is
// closed.
func Upgrade(upgrader *websocket.Upgrader, srv *Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// upgrade the HTTP connection to the websocket protocol
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer wsConn.Close()

		// this call blocks until the chat connection is closed
		srv.ServeConn(wsConn)
	})
}
