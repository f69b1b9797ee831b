// Package store persists versioned JSON collections. Every write is a
// compare-and-swap against the version the caller read, and a Commit applies
// all of its writes or none of them.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrConflict is returned by Commit when any expected version does not match.
var ErrConflict = errors.New("store: version conflict")

// Record is a stored collection value. Version 0 means the collection is absent.
type Record struct {
	Data    []byte
	Version int64
}

// Exists reports whether the collection has been written.
func (r Record) Exists() bool { return r.Version > 0 }

// Write replaces (or deletes) one collection if it is still at Version.
// Version 0 requires the collection to be absent. A Check write only asserts
// the version and leaves the collection untouched.
type Write struct {
	Key     string
	Version int64
	Data    []byte
	Delete  bool
	Check   bool
}

type Store interface {
	// Get returns a copy of the collection. Absent collections return a zero Record.
	Get(ctx context.Context, key string) (Record, error)
	// Init writes def as version 1 if the collection is absent.
	Init(ctx context.Context, key string, def []byte) error
	// Commit applies all writes atomically or returns ErrConflict.
	Commit(ctx context.Context, writes ...Write) error
	Close() error
}

// Collection keys.
const (
	ResellersKey = "resellers"
	TokensKey    = "tokens"
	UsageKey     = "usage"
	AdminKey     = "admin"
)

func ResellerKey(username string) string { return "reseller:" + username }

func KeysKey(username string) string { return "keys:" + username }

func VerificationsKey(keyID string) string { return "verifications:" + keyID }

// IsListKey reports whether the collection holds a JSON array, which decides
// the default materialized on first read.
func IsListKey(key string) bool {
	switch key {
	case ResellersKey, TokensKey, UsageKey:
		return true
	}
	return strings.HasPrefix(key, "keys:") || strings.HasPrefix(key, "verifications:")
}

// DefaultFor returns the empty value for a collection.
func DefaultFor(key string) []byte {
	if IsListKey(key) {
		return []byte("[]")
	}
	return []byte("{}")
}

func validate(writes []Write) error {
	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		if w.Key == "" {
			return errors.New("store: empty key")
		}
		if _, dup := seen[w.Key]; dup {
			return errors.New("store: duplicate key in commit: " + w.Key)
		}
		seen[w.Key] = struct{}{}
		if w.Delete && w.Version == 0 {
			return errors.New("store: delete requires a version: " + w.Key)
		}
		if w.Check && (w.Delete || w.Version == 0) {
			return errors.New("store: check needs a version and no delete: " + w.Key)
		}
	}
	return nil
}
