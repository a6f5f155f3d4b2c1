package uncivserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/K4zoku/unciv-server-cf/internal/wswriter"
	"github.com/K4zoku/unciv-server-cf/message"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"
)

// ConnState represents the possible states of a connection.
type ConnState int

// The list of possible connection states.
const (
	Unknown ConnState = iota
	Accepting
	Connected
	Closing
)

// Conn is a chat channel connection. Each connection is identified by
// a UUID and has an underlying websocket connection. It is safe to
// call methods on a Conn concurrently, but the fields should be
// treated as read-only.
type Conn struct {
	// UUID is the unique identifier of the connection, stable for its
	// lifetime. It keys the connection's registry entry and is never
	// exposed to other connections.
	UUID uuid.UUID

	// CloseErr is the error, if any, that caused the connection
	// to close. Must only be accessed after the close notification
	// has been received (i.e. after a <-conn.CloseNotify()).
	CloseErr error

	// the underlying websocket connection.
	wsConn *websocket.Conn

	wmu chan struct{} // exclusive write lock
	srv *Server

	// ensure the kill channel can only be closed once
	closeOnce sync.Once
	kill      chan struct{}
}

func newConn(c *websocket.Conn, srv *Server) *Conn {
	// wmu is the write lock, used as mutex so it can be select'ed upon.
	// start with an available slot (initialize with a sent value).
	wmu := make(chan struct{}, 1)
	wmu <- struct{}{}

	return &Conn{
		UUID:   uuid.NewRandom(),
		wsConn: c,
		wmu:    wmu,
		srv:    srv,
		kill:   make(chan struct{}),
	}
}

// UnderlyingConn returns the underlying websocket connection. Care
// should be taken when using the websocket connection directly,
// as it may interfere with the normal connection behaviour.
func (c *Conn) UnderlyingConn() *websocket.Conn {
	return c.wsConn
}

// CloseNotify returns a signal channel that is closed when the
// Conn is closed.
func (c *Conn) CloseNotify() <-chan struct{} {
	return c.kill
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.wsConn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.wsConn.RemoteAddr()
}

// Close closes the connection, setting err as CloseErr to identify
// the reason of the close, and evicts the connection's registry entry
// so it stops receiving broadcasts. It does not send a websocket close
// message, nor does it close the underlying websocket connection.
// As with all Conn methods, it is safe to call concurrently, but
// only the first call will set the CloseErr field to err.
func (c *Conn) Close(err error) {
	c.closeOnce.Do(func() {
		c.CloseErr = err
		if c.srv != nil && c.srv.Registry != nil {
			c.srv.Registry.Remove(c)
		}
		if c.kill != nil {
			close(c.kill)
		}
	})
}

// Writer returns an io.WriteCloser that can be used to send a
// message on the connection. Only one writer can be active at
// any moment for a given connection, so the returned writer
// will acquire a lock on the first call to Write, and will
// release it only when Close is called. The timeout controls
// the time to wait to acquire the lock on the first call to
// Write. If the lock cannot be acquired within that time,
// an error is returned and no write is performed.
//
// The returned writer itself is not safe for concurrent use, but
// as all Conn methods, Writer can be called concurrently.
func (c *Conn) Writer(timeout time.Duration) io.WriteCloser {
	return wswriter.Exclusive(
		c.wsConn,
		c.wmu,
		timeout,
		c.srv.WriteTimeout,
	)
}

// Send sends the message to the client. It calls the server's
// Handler if any, or ProcessMsg if nil.
func (c *Conn) Send(m message.Msg) {
	if h := c.srv.Handler; h != nil {
		h.Handle(context.Background(), c, m)
	} else {
		ProcessMsg(c, m)
	}
}

// receive is the read loop, started in its own goroutine. Transport
// errors close the connection; protocol errors are reported back to
// the client and leave the connection open and usable.
func (c *Conn) receive() {
	for {
		c.wsConn.SetReadDeadline(time.Time{})

		// NextReader returns with an error once a connection is closed,
		// so this loop doesn't need to check the c.kill channel.
		mt, r, err := c.wsConn.NextReader()
		if err != nil {
			c.Close(err)
			return
		}
		if mt != websocket.TextMessage {
			c.Close(fmt.Errorf("invalid websocket message type: %d", mt))
			return
		}
		if to := c.srv.ReadTimeout; to > 0 {
			c.wsConn.SetReadDeadline(time.Now().Add(to))
		}

		m, err := message.UnmarshalRequest(r)
		switch err {
		case nil:
		case message.ErrUnknownType:
			c.Send(message.NewError(errUnknownType))
			continue
		case message.ErrMalformed:
			c.Send(message.NewError(errMalformed))
			continue
		default:
			// reader failure, the client is gone
			c.Close(err)
			return
		}

		if h := c.srv.Handler; h != nil {
			h.Handle(context.Background(), c, m)
		} else {
			ProcessMsg(c, m)
		}
	}
}
