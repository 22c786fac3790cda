// Package object is the content-addressed, write-once object store.
package object

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	derr "dis/internal/errors"
	"dis/internal/storage"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidDigest  = errors.New("invalid digest")
	ErrDigestMismatch = errors.New("content digest mismatch")
)

// Digest is the lowercase hex hash of an object's bytes.
type Digest string

func (d Digest) String() string { return string(d) }

// Short returns the first 8 characters, for display.
func (d Digest) Short() string {
	if len(d) <= 8 {
		return string(d)
	}
	return string(d[:8])
}

// HashFunc maps content to its digest. It must be deterministic.
type HashFunc func(content []byte) Digest

// SHA1 is the default HashFunc.
func SHA1(content []byte) Digest {
	sum := sha1.Sum(content)
	return Digest(hex.EncodeToString(sum[:]))
}

type Options struct {
	Hash      HashFunc // defaults to SHA1
	CacheSize int      // number of objects kept in memory, 0 disables
}

// Store puts and gets immutable objects on a storage.Backend. Both file
// contents and serialized commits live here; the store does not tell them
// apart.
type Store struct {
	backend   storage.Backend
	hash      HashFunc
	digestLen int
	cache     *lru.Cache[Digest, []byte]
}

func NewStore(backend storage.Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.Hash == nil {
		opts.Hash = SHA1
	}

	s := &Store{
		backend:   backend,
		hash:      opts.Hash,
		digestLen: len(opts.Hash(nil)),
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[Digest, []byte](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Hash computes the digest content would be stored under.
func (s *Store) Hash(content []byte) Digest {
	return s.hash(content)
}

// Valid reports whether d has the shape of a digest this store produces.
func (s *Store) Valid(d Digest) bool {
	if len(d) != s.digestLen || len(d) == 0 {
		return false
	}
	if strings.ToLower(string(d)) != string(d) {
		return false
	}
	_, err := hex.DecodeString(string(d))
	return err == nil
}

// Put stores content under its digest. Storing the same bytes again is a
// no-op.
func (s *Store) Put(content []byte) (Digest, error) {
	if content == nil {
		content = []byte{}
	}
	d := s.hash(content)

	if _, err := s.backend.Create(storage.ObjectKey(string(d)), content); err != nil {
		return "", fmt.Errorf("storing object %s: %w", d, err)
	}

	s.remember(d, content)
	return d, nil
}

// Get returns the bytes stored under d. Unknown digests and content that
// no longer hashes to d both yield an ObjectNotFound error.
func (s *Store) Get(d Digest) ([]byte, error) {
	if !s.Valid(d) {
		return nil, derr.ObjectNotFound(string(d), ErrInvalidDigest)
	}

	if s.cache != nil {
		if content, ok := s.cache.Get(d); ok {
			return append([]byte{}, content...), nil
		}
	}

	content, err := s.read(d)
	if err != nil {
		return nil, err
	}

	s.remember(d, content)
	return content, nil
}

// Has reports whether an object exists under d without reading it.
func (s *Store) Has(d Digest) (bool, error) {
	if !s.Valid(d) {
		return false, nil
	}
	if s.cache != nil && s.cache.Contains(d) {
		return true, nil
	}
	return s.backend.Has(storage.ObjectKey(string(d)))
}

// Verify re-reads d from the backend, bypassing the cache, and checks its
// digest.
func (s *Store) Verify(d Digest) error {
	if !s.Valid(d) {
		return derr.ObjectNotFound(string(d), ErrInvalidDigest)
	}
	_, err := s.read(d)
	return err
}

// Digests lists every stored object.
func (s *Store) Digests() ([]Digest, error) {
	keys, err := s.backend.Keys(storage.ObjectPrefix)
	if err != nil {
		return nil, err
	}

	digests := make([]Digest, 0, len(keys))
	for _, k := range keys {
		digests = append(digests, Digest(strings.TrimPrefix(k, storage.ObjectPrefix)))
	}
	return digests, nil
}

func (s *Store) read(d Digest) ([]byte, error) {
	content, err := s.backend.Get(storage.ObjectKey(string(d)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, derr.ObjectNotFound(string(d), nil)
		}
		return nil, fmt.Errorf("reading object %s: %w", d, err)
	}

	if s.hash(content) != d {
		return nil, derr.ObjectNotFound(string(d), ErrDigestMismatch)
	}
	return content, nil
}

func (s *Store) remember(d Digest, content []byte) {
	if s.cache != nil {
		s.cache.Add(d, append([]byte{}, content...))
	}
}
