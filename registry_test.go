package uncivserver

import (
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn() *Conn {
	return &Conn{UUID: uuid.NewRandom(), kill: make(chan struct{})}
}

func TestRegistrySubscribeIdempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTestConn()

	ids := []string{"G2", "G1", "G1"}
	set := reg.Subscribe(c, ids)
	assert.Equal(t, []string{"G1", "G2"}, set, "first subscribe")

	// subscribing the same set again must leave the set unchanged
	set = reg.Subscribe(c, ids)
	assert.Equal(t, []string{"G1", "G2"}, set, "second subscribe")
	assert.Equal(t, 1, reg.Len(), "single entry")
}

func TestRegistryRegisterIdempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTestConn()

	reg.Register(c)
	reg.Subscribe(c, []string{"G1"})
	reg.Register(c)

	assert.True(t, reg.IsSubscribed(c, "G1"), "subscriptions survive re-register")
}

func TestRegistryUnsubscribe(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTestConn()
	reg.Subscribe(c, []string{"G1", "G2"})

	set, ok := reg.Unsubscribe(c, []string{"G1"})
	require.True(t, ok, "entry exists")
	assert.Equal(t, []string{"G2"}, set, "G1 removed")

	// unsubscribing an id that was never subscribed is a no-op
	set, ok = reg.Unsubscribe(c, []string{"nope"})
	require.True(t, ok, "entry exists")
	assert.Equal(t, []string{"G2"}, set, "set unchanged")
}

func TestRegistryUnsubscribeWithoutEntry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c := newTestConn()

	set, ok := reg.Unsubscribe(c, []string{"G1"})
	assert.False(t, ok, "no entry")
	assert.Nil(t, set, "no set")
}

func TestRegistrySubscribersOf(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, b, c := newTestConn(), newTestConn(), newTestConn()
	reg.Subscribe(a, []string{"G1", "G2"})
	reg.Subscribe(b, []string{"G1"})
	reg.Register(c)

	subs := reg.SubscribersOf("G1")
	assert.ElementsMatch(t, []*Conn{a, b}, subs, "subscribers of G1")
	assert.Empty(t, reg.SubscribersOf("G3"), "no subscribers of G3")

	assert.True(t, reg.IsSubscribed(a, "G2"), "a subscribed to G2")
	assert.False(t, reg.IsSubscribed(c, "G1"), "c not subscribed")
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, b := newTestConn(), newTestConn()
	reg.Subscribe(a, []string{"G1", "G2"})
	reg.Subscribe(b, []string{"G1"})

	reg.Remove(a)
	assert.False(t, reg.IsSubscribed(a, "G1"), "a evicted")
	assert.ElementsMatch(t, []*Conn{b}, reg.SubscribersOf("G1"), "only b remains")
	assert.Empty(t, reg.SubscribersOf("G2"), "G2 has no subscribers left")

	// must be safe to call from both the close and the error path
	reg.Remove(a)
	assert.Equal(t, 1, reg.Len(), "b still registered")
}

func TestConnCloseRemovesRegistryEntry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	srv := &Server{Registry: reg, LogFunc: DiscardLog}
	c := &Conn{UUID: uuid.NewRandom(), srv: srv, kill: make(chan struct{})}

	reg.Subscribe(c, []string{"G1"})
	require.True(t, reg.IsSubscribed(c, "G1"), "subscribed before close")

	c.Close(nil)
	assert.False(t, reg.IsSubscribed(c, "G1"), "evicted on close")
	assert.Empty(t, reg.SubscribersOf("G1"), "no subscribers left")

	select {
	case <-c.CloseNotify():
	default:
		t.Error("close notification not signaled")
	}

	// second close is a no-op
	c.Close(nil)
}
