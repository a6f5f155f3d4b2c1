// Package auth implements the password gate that authorizes requests
// against the credentials persisted in the external store.
//
// One password string is stored per user identifier, under the
// "auth:{userId}" key. An absent credential means no password was ever
// set for that user, which is distinct from an empty password: a user
// with no stored password is authorized unconditionally, and the first
// password write establishes the credential with no prior check. This
// is the deliberate first-use policy of the system, not a fallback.
//
// The check and the write of a password update are two separate store
// operations. The store offers no compare-and-swap, so concurrent
// updates to the same user may both pass the authorization check
// against a stale value; this is an accepted weak-consistency
// boundary.
package auth

import (
	"context"
	"errors"
	"expvar"
	"fmt"

	"github.com/K4zoku/unciv-server-cf/store"
)

// MinPasswordLen is the minimum length, in bytes, accepted for a new
// password. It constrains new values only; stored passwords are
// compared as-is.
const MinPasswordLen = 6

// credKey is the store key holding a user's password.
const credKey = "auth:%s"

var (
	// ErrUnauthorized is returned when the presented password does not
	// match the stored one. It deliberately does not distinguish a
	// wrong password from any other mismatch condition.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrPasswordTooShort is returned by SetPassword when the new
	// password is shorter than MinPasswordLen.
	ErrPasswordTooShort = errors.New("auth: password too short")
)

// Status is the outcome of an authentication probe.
type Status int

// The list of probe outcomes.
const (
	// NoPassword means no password was ever set for the user. Callers
	// must be able to treat this as first use, so it is distinct from
	// Authorized.
	NoPassword Status = iota

	// Authorized means the presented password matches the stored one.
	Authorized

	// Mismatch means a password is stored and the presented one does
	// not match it.
	Mismatch
)

// Gate decides whether a (userId, password) pair is currently
// authorized. It is stateless; every decision reads the credential
// store, and nothing is cached across requests.
type Gate struct {
	// prevent unkeyed literals
	_ struct{}

	// Creds is the store persisting the per-user passwords. It must be
	// set before the Gate can be used.
	Creds store.Store

	// Vars can be set to an *expvar.Map to collect metrics about the
	// gate.
	Vars *expvar.Map
}

func (g *Gate) addVar(key string) {
	if g.Vars != nil {
		g.Vars.Add(key, 1)
	}
}

// Authorize reports whether the presented password authorizes the
// user. If no password was ever stored for the user, any caller is
// treated as that user and the answer is true. Otherwise it is true
// iff the presented password equals the stored one byte for byte; no
// hashing, no normalization.
func (g *Gate) Authorize(ctx context.Context, userID, password string) (bool, error) {
	stored, err := g.Creds.Get(ctx, fmt.Sprintf(credKey, userID))
	if errors.Is(err, store.ErrNotFound) {
		g.addVar("AuthNoPassword")
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if password != stored {
		g.addVar("AuthMismatches")
		return false, nil
	}
	g.addVar("AuthMatches")
	return true, nil
}

// Probe checks the presented password without writing anything. It
// reports NoPassword when no credential exists for the user, so the
// caller can distinguish first use from a successful match.
func (g *Gate) Probe(ctx context.Context, userID, password string) (Status, error) {
	stored, err := g.Creds.Get(ctx, fmt.Sprintf(credKey, userID))
	if errors.Is(err, store.ErrNotFound) {
		return NoPassword, nil
	}
	if err != nil {
		return Mismatch, err
	}
	if password == stored {
		return Authorized, nil
	}
	return Mismatch, nil
}

// SetPassword stores a new password for the user. The currently stored
// password (not the new one) must authorize the request first; when no
// password was ever stored, the check trivially passes and this write
// establishes the credential. The new password must be at least
// MinPasswordLen bytes; a rejected update leaves any previously stored
// password unchanged.
func (g *Gate) SetPassword(ctx context.Context, userID, current, newPassword string) error {
	ok, err := g.Authorize(ctx, userID, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	if len(newPassword) < MinPasswordLen {
		return ErrPasswordTooShort
	}

	// not atomic with the check above: the store has no
	// compare-and-swap, so a concurrent update may have replaced the
	// stored value since it was read.
	if err := g.Creds.Put(ctx, fmt.Sprintf(credKey, userID), newPassword); err != nil {
		return err
	}
	g.addVar("PasswordSets")
	return nil
}
