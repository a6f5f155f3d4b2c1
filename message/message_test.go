package message

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeFlags(t *testing.T) {
	cases := []struct {
		t     Type
		name  string
		read  bool
		write bool
	}{
		{JoinMsg, "join", true, false},
		{LeaveMsg, "leave", true, false},
		{ChatMsg, "chat", true, true},
		{JoinSuccessMsg, "joinSuccess", false, true},
		{LeaveSuccessMsg, "leaveSuccess", false, true},
		{ErrorMsg, "error", false, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.name, c.t.String())
		assert.Equal(t, c.read, c.t.IsRead(), c.name)
		assert.Equal(t, c.write, c.t.IsWrite(), c.name)
	}
	assert.Equal(t, "<unknown: 999>", Type(999).String())
}

func TestUnmarshalRequest(t *testing.T) {
	cases := []struct {
		payload string
		err     error
		typ     Type
	}{
		{`not json`, ErrMalformed, 0},
		{`"join"`, ErrMalformed, 0},
		{`{}`, ErrMalformed, 0},
		{`{"type":null}`, ErrMalformed, 0},
		{`{"type":42}`, ErrMalformed, 0},
		{`{"type":"bogus"}`, ErrUnknownType, 0},
		{`{"type":"joinSuccess","gameIds":[]}`, ErrUnknownType, 0},
		{`{"type":"leaveSuccess","gameIds":[]}`, ErrUnknownType, 0},
		{`{"type":"error","message":"x"}`, ErrUnknownType, 0},
		{`{"type":"join","gameIds":"G1"}`, ErrMalformed, 0},
		{`{"type":"join","gameIds":["G1"]}`, nil, JoinMsg},
		{`{"type":"join"}`, nil, JoinMsg},
		{`{"type":"leave","gameIds":["G1","G2"]}`, nil, LeaveMsg},
		{`{"type":"chat","gameId":"G1","civName":"Rome","message":"hi"}`, nil, ChatMsg},
	}
	for _, c := range cases {
		m, err := UnmarshalRequest(strings.NewReader(c.payload))
		if c.err != nil {
			assert.Equal(t, c.err, err, c.payload)
			assert.Nil(t, m, c.payload)
			continue
		}
		require.NoError(t, err, c.payload)
		assert.Equal(t, c.typ, m.Type(), c.payload)
	}
}

func TestUnmarshalRequestJoinFiltersGameIDs(t *testing.T) {
	m, err := UnmarshalRequest(strings.NewReader(
		`{"type":"join","gameIds":["G1",42,null,{"x":1},"G2"]}`))
	require.NoError(t, err)

	join, ok := m.(*Join)
	require.True(t, ok)
	// non-string entries are dropped, not rejected
	assert.Equal(t, StringList{"G1", "G2"}, join.GameIDs)
}

func TestUnmarshalRequestChatGameID(t *testing.T) {
	cases := []struct {
		payload string
		valid   bool
		gameID  string
	}{
		{`{"type":"chat","gameId":"G1","civName":"Rome","message":"hi"}`, true, "G1"},
		{`{"type":"chat","gameId":"","civName":"Rome","message":"hi"}`, true, ""},
		{`{"type":"chat","civName":"Rome","message":"hi"}`, false, ""},
		{`{"type":"chat","gameId":42,"civName":"Rome","message":"hi"}`, false, ""},
		{`{"type":"chat","gameId":null,"civName":"Rome","message":"hi"}`, false, ""},
	}
	for _, c := range cases {
		m, err := UnmarshalRequest(strings.NewReader(c.payload))
		require.NoError(t, err, c.payload)

		chat, ok := m.(*Chat)
		require.True(t, ok, c.payload)
		assert.Equal(t, c.valid, chat.ValidGameID(), c.payload)
		assert.Equal(t, c.gameID, chat.GameID, c.payload)
		assert.Equal(t, "Rome", chat.CivName, c.payload)
		assert.Equal(t, "hi", chat.Message, c.payload)
	}
}

func TestMarshalResponses(t *testing.T) {
	cases := []struct {
		m    Msg
		want string
	}{
		{NewJoinSuccess([]string{"G1", "G2"}), `{"type":"joinSuccess","gameIds":["G1","G2"]}`},
		{NewJoinSuccess(nil), `{"type":"joinSuccess","gameIds":[]}`},
		{NewLeaveSuccess([]string{"G1"}), `{"type":"leaveSuccess","gameIds":["G1"]}`},
		{NewLeaveSuccess(nil), `{"type":"leaveSuccess","gameIds":[]}`},
		{NewError("oops"), `{"type":"error","message":"oops"}`},
	}
	for _, c := range cases {
		b, err := json.Marshal(c.m)
		require.NoError(t, err)
		assert.JSONEq(t, c.want, string(b))
	}
}

func TestNewChatEvent(t *testing.T) {
	chat := &Chat{
		Meta:    NewMeta(ChatMsg),
		CivName: "Rome",
		Message: "hi",
		GameID:  "G1",
	}
	ev := NewChatEvent(chat)
	assert.Equal(t, ChatMsg, ev.Type())

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","civName":"Rome","message":"hi","gameId":"G1"}`, string(b))
}
