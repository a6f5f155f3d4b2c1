// Package wstest provides websocket test helpers.
package wstest

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Dial dials the websocket server at url (an http:// address is
// converted to ws://) and returns the client connection.
func Dial(t *testing.T, url string) *websocket.Conn {
	return DialHeader(t, url, nil)
}

// DialHeader is like Dial with extra request headers, e.g. an
// Authorization header.
func DialHeader(t *testing.T, url string, h http.Header) *websocket.Conn {
	url = strings.Replace(url, "http:", "ws:", 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err, "Dial %s", url)
	return conn
}

// SendText writes a text message on the connection.
func SendText(t *testing.T, conn *websocket.Conn, payload string) {
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)), "WriteMessage")
}

// ReadText reads the next text message, failing the test if none
// arrives before the timeout.
func ReadText(t *testing.T, conn *websocket.Conn, timeout time.Duration) []byte {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)), "SetReadDeadline")
	_, b, err := conn.ReadMessage()
	require.NoError(t, err, "ReadMessage")
	return b
}

// ExpectNothing asserts that no message arrives on the connection
// within the wait duration. Gorilla treats read errors as permanent,
// including the deadline expiry this relies on, so the connection's
// read side is unusable afterwards; writes still work, but any further
// reply must be observed on another connection or on the server side.
func ExpectNothing(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)), "SetReadDeadline")
	_, b, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", b)
	}
	nerr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && nerr.Timeout(), "expected a read timeout, got %v", err)
}
