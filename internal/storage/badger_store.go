// internal/storage/badger_store.go
package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend stores keys verbatim in a badger database. Every Create and
// Apply runs in its own read-write transaction.
type BadgerBackend struct {
	db    *badger.DB
	owned bool
}

// OpenBadger opens (or creates) a database directory at path.
func OpenBadger(path string) (*BadgerBackend, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil). // Suppress badger's own logging
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &BadgerBackend{db: db, owned: true}, nil
}

// OpenBadgerInMemory opens a database that lives only as long as the process.
func OpenBadgerInMemory() (*BadgerBackend, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	return &BadgerBackend{db: db, owned: true}, nil
}

// NewBadgerBackend wraps a database the caller keeps ownership of.
func NewBadgerBackend(db *badger.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

func (s *BadgerBackend) Init() error { return nil }

func (s *BadgerBackend) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

func (s *BadgerBackend) Has(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerBackend) Create(key string, value []byte) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		// Check if key already exists
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		created = true
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", key, err)
	}
	return created, nil
}

func (s *BadgerBackend) Apply(writes ...Write) error {
	for _, w := range writes {
		if err := validateKey(w.Key); err != nil {
			return err
		}
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			if err := txn.Set([]byte(w.Key), w.Value); err != nil {
				return fmt.Errorf("setting %s: %w", w.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("applying writes: %w", err)
	}
	return nil
}

func (s *BadgerBackend) Keys(prefix string) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

func (s *BadgerBackend) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
