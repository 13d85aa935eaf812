// Package storage provides a key-value storage abstraction where values
// are JSON-serializable structs. It is used by the stacker core to keep
// branch and cache metadata inside the repository itself, without
// touching the files a user is working on.
package storage

import (
	"context"
	"errors"
)

// UpdateRequest performs a batch of write operations as one transaction.
type UpdateRequest struct {
	Sets []SetRequest

	// Deletes lists the keys to delete.
	Deletes []string

	// Message describes the change, and becomes the commit message
	// for backends that record history.
	Message string
}

// SetRequest is a single operation to add or update a key.
type SetRequest struct {
	Key   string
	Value any
}

// ErrNotExist indicates that a key expected to exist does not.
var ErrNotExist = errors.New("does not exist in store")

// Backend defines the primitive operations of the key-value store.
type Backend interface {
	// Get retrieves a value from the store and decodes it into dst.
	// If the key does not exist, Get returns ErrNotExist.
	Get(ctx context.Context, key string, dst any) error

	Update(ctx context.Context, req UpdateRequest) error
	Clear(ctx context.Context, msg string) error

	// Keys lists the keys under the given '/'-separated directory,
	// with the directory prefix removed. An empty dir lists everything.
	Keys(ctx context.Context, dir string) ([]string, error)
}

// DB is a high-level, convenience wrapper around a Backend.
type DB struct{ Backend }

// NewDB wraps a Backend in a DB.
func NewDB(b Backend) *DB {
	return &DB{Backend: b}
}

// Set adds or updates a single key.
func (db *DB) Set(ctx context.Context, key string, value any, msg string) error {
	return db.Update(ctx, UpdateRequest{
		Sets:    []SetRequest{{Key: key, Value: value}},
		Message: msg,
	})
}

// Delete removes a single key.
func (db *DB) Delete(ctx context.Context, key string, msg string) error {
	return db.Update(ctx, UpdateRequest{
		Deletes: []string{key},
		Message: msg,
	})
}
