// Package kvstore provides the local string-keyed blob storage used by every
// cache tier. Keys are namespaced by purpose and environment so entries written
// against one backing service never leak into another.
package kvstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound indicates the key has no stored value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is string-keyed blob storage.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Namespace builds keys of the form "<purpose>:<env>:<part>:<part>...".
type Namespace struct {
	Purpose     string
	Environment string
}

// Prefix returns the namespace prefix including the trailing separator.
func (n Namespace) Prefix() string {
	return n.Purpose + ":" + n.Environment + ":"
}

// Key joins parts beneath the namespace prefix.
func (n Namespace) Key(parts ...string) string {
	return n.Prefix() + strings.Join(parts, ":")
}
