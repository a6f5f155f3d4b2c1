package uncivserver_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	uncivserver "github.com/K4zoku/unciv-server-cf"
	"github.com/K4zoku/unciv-server-cf/internal/wstest"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireMsg holds the superset of fields used by all protocol messages,
// so test assertions can decode any reply into a single struct.
type wireMsg struct {
	Type    string   `json:"type"`
	GameIDs []string `json:"gameIds"`
	CivName string   `json:"civName"`
	Message string   `json:"message"`
	GameID  string   `json:"gameId"`
}

func readMsg(t *testing.T, conn *websocket.Conn) wireMsg {
	b := wstest.ReadText(t, conn, time.Second)
	var m wireMsg
	require.NoError(t, json.Unmarshal(b, &m), "unmarshal %s", string(b))
	return m
}

func startServer(t *testing.T, srv *uncivserver.Server) *httptest.Server {
	if srv.Registry == nil {
		srv.Registry = uncivserver.NewRegistry()
	}
	if srv.LogFunc == nil {
		srv.LogFunc = uncivserver.DiscardLog
	}
	if srv.AcquireWriteLockTimeout == 0 {
		srv.AcquireWriteLockTimeout = time.Second
	}
	ts := httptest.NewServer(uncivserver.Upgrade(&websocket.Upgrader{}, srv))
	t.Cleanup(ts.Close)
	return ts
}

func TestServeConnJoinAck(t *testing.T) {
	t.Parallel()

	ts := startServer(t, &uncivserver.Server{})
	conn := wstest.Dial(t, ts.URL)
	defer conn.Close()

	// duplicate and non-string ids are dropped, the ack is sorted
	wstest.SendText(t, conn, `{"type":"join","gameIds":["G2","G1","G1",42,null]}`)
	m := readMsg(t, conn)
	assert.Equal(t, "joinSuccess", m.Type)
	assert.Equal(t, []string{"G1", "G2"}, m.GameIDs)

	// joining more channels acks the full resulting set
	wstest.SendText(t, conn, `{"type":"join","gameIds":["G3"]}`)
	m = readMsg(t, conn)
	assert.Equal(t, "joinSuccess", m.Type)
	assert.Equal(t, []string{"G1", "G2", "G3"}, m.GameIDs)
}

func TestServeConnLeaveAck(t *testing.T) {
	t.Parallel()

	ts := startServer(t, &uncivserver.Server{})
	conn := wstest.Dial(t, ts.URL)
	defer conn.Close()

	wstest.SendText(t, conn, `{"type":"join","gameIds":["G1","G2"]}`)
	readMsg(t, conn)

	wstest.SendText(t, conn, `{"type":"leave","gameIds":["G1"]}`)
	m := readMsg(t, conn)
	assert.Equal(t, "leaveSuccess", m.Type)
	assert.Equal(t, []string{"G2"}, m.GameIDs)

	// leaving a channel that was never joined still acks the full set
	wstest.SendText(t, conn, `{"type":"leave","gameIds":["nope"]}`)
	m = readMsg(t, conn)
	assert.Equal(t, "leaveSuccess", m.Type)
	assert.Equal(t, []string{"G2"}, m.GameIDs)
}

func TestServeConnChatBroadcast(t *testing.T) {
	t.Parallel()

	ts := startServer(t, &uncivserver.Server{})

	a := wstest.Dial(t, ts.URL)
	defer a.Close()
	b := wstest.Dial(t, ts.URL)
	defer b.Close()
	c := wstest.Dial(t, ts.URL)
	defer c.Close()

	wstest.SendText(t, a, `{"type":"join","gameIds":["G1"]}`)
	readMsg(t, a)
	wstest.SendText(t, b, `{"type":"join","gameIds":["G1"]}`)
	readMsg(t, b)
	// c is connected but never joins G1

	wstest.SendText(t, a, `{"type":"chat","gameId":"G1","civName":"Rome","message":"hi"}`)

	for _, conn := range []*websocket.Conn{a, b} {
		m := readMsg(t, conn)
		assert.Equal(t, "chat", m.Type)
		assert.Equal(t, "G1", m.GameID)
		assert.Equal(t, "Rome", m.CivName)
		assert.Equal(t, "hi", m.Message)
	}
	wstest.ExpectNothing(t, c, 200*time.Millisecond)
}

func TestServeConnChatNotSubscribed(t *testing.T) {
	t.Parallel()

	ts := startServer(t, &uncivserver.Server{})

	watcher := wstest.Dial(t, ts.URL)
	defer watcher.Close()
	wstest.SendText(t, watcher, `{"type":"join","gameIds":["G1"]}`)
	readMsg(t, watcher)

	conn := wstest.Dial(t, ts.URL)
	defer conn.Close()
	wstest.SendText(t, conn, `{"type":"chat","gameId":"G1","civName":"Rome","message":"hi"}`)

	m := readMsg(t, conn)
	assert.Equal(t, "error", m.Type)
	assert.Equal(t, "You are not subscribed to this channel!", m.Message)

	// the rejected chat must not reach the channel's subscribers
	wstest.ExpectNothing(t, watcher, 200*time.Millisecond)
}

func TestServeConnChatInvalidGameID(t *testing.T) {
	t.Parallel()

	ts := startServer(t, &uncivserver.Server{})
	conn := wstest.Dial(t, ts.URL)
	defer conn.Close()

	cases := []string{
		`{"type":"chat","civName":"Rome","message":"hi"}`,
		`{"type":"chat","gameId":42,"civName":"Rome","message":"hi"}`,
		`{"type":"chat","gameId":null,"civName":"Rome","message":"hi"}`,
	}
	for _, payload := range cases {
		wstest.SendText(t, conn, payload)
		m := readMsg(t, conn)
		assert.Equal(t, "error", m.Type, payload)
		assert.Equal(t, "Invalid or missing gameId", m.Message, payload)
	}
}

func TestServeConnProtocolErrorsKeepConnOpen(t *testing.T) {
	t.Parallel()

	ts := startServer(t, &uncivserver.Server{})
	conn := wstest.Dial(t, ts.URL)
	defer conn.Close()

	cases := []struct {
		payload string
		errMsg  string
	}{
		{`{"type":"bogus"}`, "Unknown message type"},
		{`{"type":"joinSuccess","gameIds":[]}`, "Unknown message type"},
		{`not json`, "Malformed message"},
		{`{"gameIds":["G1"]}`, "Malformed message"},
		{`{"type":42}`, "Malformed message"},
		{`{"type":"join","gameIds":"G1"}`, "Malformed message"},
	}
	for _, c := range cases {
		wstest.SendText(t, conn, c.payload)
		m := readMsg(t, conn)
		assert.Equal(t, "error", m.Type, c.payload)
		assert.Equal(t, c.errMsg, m.Message, c.payload)
	}

	// the connection survived every protocol error
	wstest.SendText(t, conn, `{"type":"join","gameIds":["G1"]}`)
	m := readMsg(t, conn)
	assert.Equal(t, "joinSuccess", m.Type)
	assert.Equal(t, []string{"G1"}, m.GameIDs)
}

func TestServeConnBinaryMessageCloses(t *testing.T) {
	t.Parallel()

	states := make(chan uncivserver.ConnState, 4)
	srv := &uncivserver.Server{
		ConnState: func(_ *uncivserver.Conn, s uncivserver.ConnState) {
			states <- s
		},
	}
	ts := startServer(t, srv)
	conn := wstest.Dial(t, ts.URL)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("nope")))

	waitForState(t, states, uncivserver.Closing)
}

func TestServeConnCloseEvictsRegistry(t *testing.T) {
	t.Parallel()

	states := make(chan uncivserver.ConnState, 4)
	srv := &uncivserver.Server{
		ConnState: func(_ *uncivserver.Conn, s uncivserver.ConnState) {
			states <- s
		},
	}
	ts := startServer(t, srv)

	conn := wstest.Dial(t, ts.URL)
	wstest.SendText(t, conn, `{"type":"join","gameIds":["G1"]}`)
	readMsg(t, conn)
	require.Equal(t, 1, srv.Registry.Len())

	conn.Close()
	waitForState(t, states, uncivserver.Closing)

	assert.Empty(t, srv.Registry.SubscribersOf("G1"), "closed conn evicted")
	assert.Equal(t, 0, srv.Registry.Len())
}

func TestServeConnLeaveWithoutEntry(t *testing.T) {
	t.Parallel()

	conns := make(chan *uncivserver.Conn, 1)
	srv := &uncivserver.Server{
		ConnState: func(c *uncivserver.Conn, s uncivserver.ConnState) {
			if s == uncivserver.Connected {
				select {
				case conns <- c:
				default:
				}
			}
		},
	}
	ts := startServer(t, srv)

	conn := wstest.Dial(t, ts.URL)
	defer conn.Close()

	var sc *uncivserver.Conn
	select {
	case sc = <-conns:
	case <-time.After(time.Second):
		t.Fatal("no server-side connection")
	}

	// a connection whose registry entry is gone gets no reply to a
	// leave, there is nothing to acknowledge.
	srv.Registry.Remove(sc)
	wstest.SendText(t, conn, `{"type":"leave","gameIds":["G1"]}`)
	wstest.ExpectNothing(t, conn, 200*time.Millisecond)

	// a join re-creates the entry and the protocol resumes. The
	// expired read deadline above poisoned the client's read side, so
	// observe the resumption on the server's registry instead.
	wstest.SendText(t, conn, `{"type":"join","gameIds":["G1"]}`)
	assert.Eventually(t, func() bool {
		return srv.Registry.IsSubscribed(sc, "G1")
	}, time.Second, 10*time.Millisecond, "join after silent leave re-creates the entry")
}

func waitForState(t *testing.T, states <-chan uncivserver.ConnState, want uncivserver.ConnState) {
	timeout := time.After(time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("state %d not reached", want)
		}
	}
}
