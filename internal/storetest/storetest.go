// Package storetest provides an in-memory store.Store implementation
// for tests.
package storetest

import (
	"context"
	"sync"

	"github.com/K4zoku/unciv-server-cf/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory key-value store. The zero value is not usable;
// create instances with New.
type Store struct {
	// Err, when set, is returned by every operation. It simulates a
	// remote store failure.
	Err error

	mu sync.Mutex
	m  map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{m: make(map[string]string)}
}

// Get returns the value stored under key, or store.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

// Put stores value under key.
func (s *Store) Put(_ context.Context, key, value string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// Del removes key.
func (s *Store) Del(_ context.Context, key string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
