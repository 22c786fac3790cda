// Package storage holds the key/value backends a repository persists into.
//
// The key space is small and fixed: HEAD, index, and one objects/<digest>
// key per stored object. Objects are written with Create and never change;
// HEAD and index are replaced through Apply, which is atomic across keys.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	HeadKey      = "HEAD"
	IndexKey     = "index"
	ObjectPrefix = "objects/"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("key not found")

// Write is one key replacement inside an Apply.
type Write struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Backend is the persistence contract shared by every storage engine.
type Backend interface {
	// Init prepares the physical layout. Safe to call repeatedly.
	Init() error

	Get(key string) ([]byte, error)
	Has(key string) (bool, error)

	// Create writes value only if key does not exist yet and reports
	// whether it did.
	Create(key string, value []byte) (bool, error)

	// Apply replaces all given keys as one unit: either every write is
	// visible afterwards or, after a crash, recovery completes them.
	Apply(writes ...Write) error

	// Keys lists the keys starting with prefix in ascending order.
	Keys(prefix string) ([]string, error)

	Close() error
}

// ObjectKey returns the key an object with the given digest lives under.
func ObjectKey(digest string) string {
	return ObjectPrefix + digest
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.ContainsRune(key, '\\') {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}
