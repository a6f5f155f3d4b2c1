// Package uncivserver implements a multiplayer game relay: clients
// persist save files and authenticate with a per-user password, and
// exchange real-time chat messages scoped to a game session over a
// persistent websocket connection.
//
// # Server
//
// The Server struct defines a chat relay server. In its simplest form,
// the following initializes a ready-to-use server:
//
//	server := &uncivserver.Server{
//	    Registry: uncivserver.NewRegistry(),
//	}
//
// That is, only the connection registry must be set for the server to
// start serving connections. The registry is strictly local to the
// process: chat broadcasts only reach connections served by the same
// process instance.
//
// Additional fields allow for more advanced configuration, such as
// read and write timeouts, and custom message handling, via the
// Handler. See the Server documentation for all details.
//
// The ServeConn method serves a connection using a configured Server.
// The Upgrade function creates an http.Handler that upgrades the
// connection to a websocket connection, and serves it using the
// provided Server. The httpapi package wires that handler into the
// full HTTP surface, together with the save file and password
// endpoints built on the store, auth and saves packages.
package uncivserver
