// Package redisstore implements the store.Store interface using redis
// as backend. Values are plain string keys accessed with GET, SET and
// DEL, so a redis cluster is supported without any key slotting
// concerns.
//
// The redis deployment this talks to is treated as the external,
// eventually consistent collaborator of the system: the store exposes
// no transactions and no compare-and-swap, and in-flight commands are
// not cancelled when the caller's context expires (the context is
// only checked before issuing a command).
package redisstore

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log"

	"github.com/K4zoku/unciv-server-cf/store"
	"github.com/gomodule/redigo/redis"
)

// static check that *Store implements the store interface
var _ store.Store = (*Store)(nil)

// DiscardLog is a no-op logging function that can be used as
// Store.LogFunc to disable logging.
var DiscardLog = func(_ string, _ ...interface{}) {}

// Pool defines the methods required for a redis pool that provides
// a method to get a connection and to release the pool's resources.
type Pool interface {
	// Get returns a redis connection.
	Get() redis.Conn

	// Close releases the resources used by the pool.
	Close() error
}

// Store is a redis-backed key-value store.
type Store struct {
	// prevent unkeyed literals
	_ struct{}

	// Pool is the redis pool or redisc cluster to use to get
	// short-lived connections.
	Pool Pool

	// LogFunc is the logging function to use. If nil, log.Printf
	// is used. It can be set to DiscardLog to disable logging.
	LogFunc func(string, ...interface{})

	// Vars can be set to an *expvar.Map to collect metrics about the
	// store.
	Vars *expvar.Map
}

func (s *Store) logf(f string, args ...interface{}) {
	if s.LogFunc != nil {
		s.LogFunc(f, args...)
		return
	}
	log.Printf(f, args...)
}

func (s *Store) addVar(key string) {
	if s.Vars != nil {
		s.Vars.Add(key, 1)
	}
}

// Get returns the value stored under key, or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rc := s.Pool.Get()
	defer rc.Close()

	s.addVar("Gets")
	v, err := redis.String(rc.Do("GET", key))
	if errors.Is(err, redis.ErrNil) {
		s.addVar("GetMisses")
		return "", store.ErrNotFound
	}
	if err != nil {
		s.addVar("GetErrors")
		s.logf("redisstore: GET %s failed: %v", key, err)
		return "", fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return v, nil
}

// Put stores value under key, overwriting any previous value.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rc := s.Pool.Get()
	defer rc.Close()

	s.addVar("Puts")
	if _, err := rc.Do("SET", key, value); err != nil {
		s.addVar("PutErrors")
		s.logf("redisstore: SET %s failed: %v", key, err)
		return fmt.Errorf("redisstore: put %s: %w", key, err)
	}
	return nil
}

// Del removes key. Deleting an absent key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rc := s.Pool.Get()
	defer rc.Close()

	s.addVar("Dels")
	if _, err := rc.Do("DEL", key); err != nil {
		s.addVar("DelErrors")
		s.logf("redisstore: DEL %s failed: %v", key, err)
		return fmt.Errorf("redisstore: del %s: %w", key, err)
	}
	return nil
}
