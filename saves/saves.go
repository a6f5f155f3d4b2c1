// Package saves persists game save files in the external store and
// enforces the conditional write policy that protects them.
//
// A file is one opaque text blob per file name, stored under the
// "file:{fileName}" key. There is no ownership record: a file that
// does not exist yet can be written by anyone, and overwriting an
// existing file requires the writer's own credential to authorize.
// Protection is derived entirely from whether the writer's own
// password matches, not from any link between the file and the user
// that created it; any user whose own password checks out may
// overwrite any existing file. That is the policy of the original
// system, reproduced as-is.
package saves

import (
	"context"
	"errors"
	"expvar"
	"fmt"

	"github.com/K4zoku/unciv-server-cf/auth"
	"github.com/K4zoku/unciv-server-cf/store"
)

// fileKey is the store key holding a save file's content.
const fileKey = "file:%s"

// ErrNotFound is returned by Fetch when no file exists by that name.
var ErrNotFound = errors.New("saves: file not found")

// Store reads and writes save files. It is stateless; file content is
// never cached across requests.
type Store struct {
	// prevent unkeyed literals
	_ struct{}

	// KV is the external key-value collaborator holding the file
	// blobs. It must be set before the Store can be used.
	KV store.Store

	// Gate authorizes reads and overwrites of existing files. It must
	// be set before the Store can be used.
	Gate *auth.Gate

	// Vars can be set to an *expvar.Map to collect metrics about the
	// store.
	Vars *expvar.Map
}

func (s *Store) addVar(key string) {
	if s.Vars != nil {
		s.Vars.Add(key, 1)
	}
}

// Fetch returns the named file's content. A missing file is reported
// as ErrNotFound before any authorization check runs; an existing file
// requires the requesting user's credential to authorize, and a failed
// check is reported as auth.ErrUnauthorized.
func (s *Store) Fetch(ctx context.Context, name, userID, password string) (string, error) {
	content, err := s.KV.Get(ctx, fmt.Sprintf(fileKey, name))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	ok, err := s.Gate.Authorize(ctx, userID, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", auth.ErrUnauthorized
	}
	s.addVar("Fetches")
	return content, nil
}

// Save writes the named file. A file that does not exist yet is
// written unconditionally, regardless of the presented credentials;
// the write bootstraps the file. Overwriting an existing file requires
// the writer's own credential to authorize. It returns true when the
// write created the file.
//
// The existence check and the write are two separate store operations
// with no atomicity between them; see the store package contract.
func (s *Store) Save(ctx context.Context, name, userID, password, content string) (created bool, err error) {
	key := fmt.Sprintf(fileKey, name)

	_, err = s.KV.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		created = true
	case err != nil:
		return false, err
	default:
		ok, aerr := s.Gate.Authorize(ctx, userID, password)
		if aerr != nil {
			return false, aerr
		}
		if !ok {
			return false, auth.ErrUnauthorized
		}
	}

	if err := s.KV.Put(ctx, key, content); err != nil {
		return false, err
	}
	if created {
		s.addVar("SavesCreated")
	} else {
		s.addVar("SavesOverwritten")
	}
	return created, nil
}
