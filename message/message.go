// Package message defines the messages exchanged over a chat channel
// connection.
//
// Clients send requests (join, leave, chat) and receive responses
// (joinSuccess, leaveSuccess, error) as well as chat broadcasts. All
// messages are JSON objects with a required "type" field that names
// the message type.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Type indicates the type of a message.
type Type int

// The list of supported message types.
const (
	unknownMsg Type = iota

	JoinMsg
	LeaveMsg
	ChatMsg

	JoinSuccessMsg
	LeaveSuccessMsg
	ErrorMsg
)

var typeNames = map[Type]string{
	JoinMsg:         "join",
	LeaveMsg:        "leave",
	ChatMsg:         "chat",
	JoinSuccessMsg:  "joinSuccess",
	LeaveSuccessMsg: "leaveSuccess",
	ErrorMsg:        "error",
}

var typeLookup = map[string]Type{
	"join":         JoinMsg,
	"leave":        LeaveMsg,
	"chat":         ChatMsg,
	"joinSuccess":  JoinSuccessMsg,
	"leaveSuccess": LeaveSuccessMsg,
	"error":        ErrorMsg,
}

// String returns the name of the message type as it appears on the
// wire in the "type" field.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("<unknown: %d>", int(t))
}

// IsRead returns true if the message type is a request that can be
// read from a client. The chat type is both read and written: clients
// send chat requests and receive chat broadcasts.
func (t Type) IsRead() bool {
	switch t {
	case JoinMsg, LeaveMsg, ChatMsg:
		return true
	}
	return false
}

// IsWrite returns true if the message type can be written to a client.
func (t Type) IsWrite() bool {
	switch t {
	case JoinSuccessMsg, LeaveSuccessMsg, ChatMsg, ErrorMsg:
		return true
	}
	return false
}

// Msg defines the common methods implemented by all messages.
type Msg interface {
	// Type returns the message type.
	Type() Type
}

// Meta is the metadata part of a message, common to all messages. It
// carries the wire representation of the message type.
type Meta struct {
	T string `json:"type"`
}

// NewMeta returns a Meta for the given message type.
func NewMeta(t Type) Meta {
	return Meta{T: t.String()}
}

// Type returns the message type identified by the metadata.
func (m Meta) Type() Type {
	return typeLookup[m.T]
}

// StringList is a JSON array filtered to its string elements.
// Non-string entries are silently dropped instead of rejecting the
// whole message, matching the relay's historical behaviour.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler for the StringList.
func (s *StringList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	list := make([]string, 0, len(raw))
	for _, el := range raw {
		// decode through a pointer so a null element is dropped too,
		// unmarshaling null into a plain string silently succeeds
		var v *string
		if err := json.Unmarshal(el, &v); err == nil && v != nil {
			list = append(list, *v)
		}
	}
	*s = list
	return nil
}

// Join is the client request to subscribe the connection to a set of
// game channels.
type Join struct {
	Meta
	GameIDs StringList `json:"gameIds"`
}

// Leave is the client request to unsubscribe the connection from a set
// of game channels.
type Leave struct {
	Meta
	GameIDs StringList `json:"gameIds"`
}

// Chat is the client request to send a chat line to a game channel.
type Chat struct {
	Meta
	CivName string `json:"civName"`
	Message string `json:"message"`
	GameID  string `json:"gameId"`

	hasGameID bool
}

// UnmarshalJSON implements json.Unmarshaler for the Chat message. A
// missing or non-string gameId does not fail the decode: it leaves the
// message with an invalid gameId so it can be reported as such, which
// is a distinct outcome from a malformed message.
func (c *Chat) UnmarshalJSON(b []byte) error {
	var raw struct {
		Meta
		CivName string          `json:"civName"`
		Message string          `json:"message"`
		GameID  json.RawMessage `json:"gameId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Meta, c.CivName, c.Message = raw.Meta, raw.CivName, raw.Message

	// same pointer indirection as StringList: a null gameId must stay
	// invalid, not become the empty string
	var id *string
	if len(raw.GameID) > 0 && json.Unmarshal(raw.GameID, &id) == nil && id != nil {
		c.GameID, c.hasGameID = *id, true
	}
	return nil
}

// ValidGameID reports whether the message carried a gameId that is a
// JSON string.
func (c *Chat) ValidGameID() bool {
	return c.hasGameID
}

// ChatEvent is the server-to-client broadcast of a chat line. It
// shares the "chat" wire type with Chat; the direction distinguishes
// them.
type ChatEvent struct {
	Meta
	CivName string `json:"civName"`
	Message string `json:"message"`
	GameID  string `json:"gameId"`
}

// NewChatEvent creates a broadcast event carrying the chat request's
// payload verbatim.
func NewChatEvent(from *Chat) *ChatEvent {
	return &ChatEvent{
		Meta:    NewMeta(ChatMsg),
		CivName: from.CivName,
		Message: from.Message,
		GameID:  from.GameID,
	}
}

// Success acknowledges a join or leave request. GameIDs is the
// connection's full resulting subscription set, not just the delta.
type Success struct {
	Meta
	GameIDs []string `json:"gameIds"`
}

// NewJoinSuccess creates a joinSuccess message for the subscription
// set.
func NewJoinSuccess(gameIDs []string) *Success {
	if gameIDs == nil {
		gameIDs = []string{}
	}
	return &Success{Meta: NewMeta(JoinSuccessMsg), GameIDs: gameIDs}
}

// NewLeaveSuccess creates a leaveSuccess message for the subscription
// set.
func NewLeaveSuccess(gameIDs []string) *Success {
	if gameIDs == nil {
		gameIDs = []string{}
	}
	return &Success{Meta: NewMeta(LeaveSuccessMsg), GameIDs: gameIDs}
}

// Error is the structured error reported to the offending connection.
type Error struct {
	Meta
	Message string `json:"message"`
}

// NewError creates an error message with the provided text.
func NewError(msg string) *Error {
	return &Error{Meta: NewMeta(ErrorMsg), Message: msg}
}

var (
	// ErrMalformed is returned by UnmarshalRequest when the payload is
	// not a valid JSON object or its type field is missing or not a
	// string.
	ErrMalformed = errors.New("message: malformed message")

	// ErrUnknownType is returned by UnmarshalRequest when the payload
	// has a valid envelope but its type is not a request type. Response
	// types sent by a client fall in this category too.
	ErrUnknownType = errors.New("message: unknown message type")
)

// UnmarshalRequest reads a client message from r. Only request types
// are accepted.
func UnmarshalRequest(r io.Reader) (Msg, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var pm struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(b, &pm); err != nil {
		return nil, ErrMalformed
	}
	// a missing, null or non-string type is malformed, not unknown
	var name *string
	if len(pm.Type) == 0 || json.Unmarshal(pm.Type, &name) != nil || name == nil {
		return nil, ErrMalformed
	}

	t, ok := typeLookup[*name]
	if !ok || !t.IsRead() {
		return nil, ErrUnknownType
	}

	var m Msg
	switch t {
	case JoinMsg:
		m = &Join{}
	case LeaveMsg:
		m = &Leave{}
	case ChatMsg:
		m = &Chat{}
	}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, ErrMalformed
	}
	return m, nil
}
