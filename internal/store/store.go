// Package store provides the state store abstraction used by all services.
// Values are JSON documents addressed by string keys; ownership is encoded
// in the key (task:{user_id}:{task_id}), so prefix queries scope to a user.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("key not found")

// Item is a single query result: the key and its raw JSON document
type Item struct {
	Key   string
	Value json.RawMessage
}

// Query selects documents by key prefix. Limit caps the number of items
// returned; zero means no limit.
type Query struct {
	Prefix string
	Limit  int
}

// StateStore is a keyed JSON document store. Put overwrites, Delete is
// idempotent, and Query returns documents whose keys match a prefix.
// Implementations must be safe for concurrent use.
type StateStore interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, out any) error
	Delete(ctx context.Context, key string) error
	Query(ctx context.Context, q Query) ([]Item, error)
	Close() error
}
