// Package srvhandler implements server handlers used by the
// unciv-server command and various tests.
package srvhandler

import (
	"context"
	"expvar"
	"fmt"

	uncivserver "github.com/K4zoku/unciv-server-cf"
	"github.com/K4zoku/unciv-server-cf/message"
)

// Chain returns a Handler that calls the provided handlers
// in order, one after the other.
func Chain(hs ...uncivserver.Handler) uncivserver.Handler {
	return uncivserver.HandlerFunc(func(ctx context.Context, c *uncivserver.Conn, m message.Msg) {
		for _, h := range hs {
			h.Handle(ctx, c, m)
		}
	})
}

// PanicRecover returns a Handler that recovers from panics that
// may happen in h. The connection is closed on a panic. If a non-nil
// vars is passed as parameter, the RecoveredPanics counter is
// incremented for each panic.
func PanicRecover(h uncivserver.Handler, vars *expvar.Map) uncivserver.Handler {
	return uncivserver.HandlerFunc(func(ctx context.Context, c *uncivserver.Conn, m message.Msg) {
		defer func() {
			if e := recover(); e != nil {
				if vars != nil {
					vars.Add("RecoveredPanics", 1)
				}

				var err error
				switch e := e.(type) {
				case error:
					err = e
				default:
					err = fmt.Errorf("%v", e)
				}
				c.Close(err)
			}
		}()
		h.Handle(ctx, c, m)
	})
}

// LogConn returns a function compatible with the Server.ConnState field
// type that logs connections and disconnections to the provided logger
// function. It is not a Handler.
func LogConn(logFn func(string, ...interface{})) func(*uncivserver.Conn, uncivserver.ConnState) {
	return func(c *uncivserver.Conn, state uncivserver.ConnState) {
		switch state {
		case uncivserver.Connected:
			logFn("%v: connected from %v", c.UUID, c.RemoteAddr())
		case uncivserver.Closing:
			logFn("%v: closing from %v with error %v", c.UUID, c.RemoteAddr(), c.CloseErr)
		}
	}
}

// LogMsg returns a Handler that logs messages received or sent on
// the connection to the provided logger function.
func LogMsg(logFn func(string, ...interface{})) uncivserver.Handler {
	return uncivserver.HandlerFunc(func(ctx context.Context, c *uncivserver.Conn, m message.Msg) {
		// the chat wire type flows in both directions, so the concrete
		// type decides the direction, not the type flags.
		switch m.(type) {
		case *message.Join, *message.Leave, *message.Chat:
			logFn("%v: received message %s", c.UUID, m.Type())
		default:
			if m.Type().IsWrite() {
				logFn("%v: sending message %s", c.UUID, m.Type())
			}
		}
	})
}
