package uncivserver

import (
	"sort"
	"sync"
)

// Registry is the process-local table of live connections and the game
// channels each one is subscribed to. Entries are keyed by the
// connection's UUID, assigned when the connection is created; the live
// connection is kept alongside the subscription set so that broadcast
// targets can be resolved in a single lookup.
//
// The registry state is strictly local to this process. Chat messages
// only reach connections registered on the instance that received
// them; there is no cross-process propagation.
//
// All methods are safe for concurrent use. They are pure in-memory
// operations and never block on I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	subs  map[string]map[string]struct{}
}

// NewRegistry creates an empty connection registry. A single registry
// lives for the duration of the process and is injected into the
// Server that dispatches inbound messages.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		subs:  make(map[string]map[string]struct{}),
	}
}

// Register adds the connection with an empty subscription set. It is
// idempotent: registering an already-registered connection leaves its
// subscriptions untouched.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(c)
}

// ensure adds the entry if absent. Callers must hold the write lock.
func (r *Registry) ensure(c *Conn) map[string]struct{} {
	token := c.UUID.String()
	set, ok := r.subs[token]
	if !ok {
		set = make(map[string]struct{})
		r.subs[token] = set
		r.conns[token] = c
	}
	return set
}

// Subscribe adds the game ids to the connection's subscription set,
// registering the connection if needed. Duplicate ids are deduplicated
// by the set semantics. It returns the resulting full subscription
// set, sorted, so the caller can acknowledge it.
func (r *Registry) Subscribe(c *Conn, gameIDs []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.ensure(c)
	for _, id := range gameIDs {
		set[id] = struct{}{}
	}
	return sortedSet(set)
}

// Unsubscribe removes the game ids from the connection's subscription
// set; ids that are not subscribed are ignored. It returns the
// resulting full set and whether the connection had a registry entry
// at all.
func (r *Registry) Unsubscribe(c *Conn, gameIDs []string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[c.UUID.String()]
	if !ok {
		return nil, false
	}
	for _, id := range gameIDs {
		delete(set, id)
	}
	return sortedSet(set), true
}

// IsSubscribed returns true if the connection is currently subscribed
// to the game id.
func (r *Registry) IsSubscribed(c *Conn, gameID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.subs[c.UUID.String()]
	if !ok {
		return false
	}
	_, ok = set[gameID]
	return ok
}

// SubscribersOf returns every registered connection whose subscription
// set contains the game id at the time of the call. No ordering is
// guaranteed.
func (r *Registry) SubscribersOf(gameID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Conn
	for token, set := range r.subs {
		if _, ok := set[gameID]; ok {
			conns = append(conns, r.conns[token])
		}
	}
	return conns
}

// Remove deletes the connection's entry entirely. It is safe to call
// multiple times, so both the close and the error paths of a
// connection may trigger it.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := c.UUID.String()
	delete(r.subs, token)
	delete(r.conns, token)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func sortedSet(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
