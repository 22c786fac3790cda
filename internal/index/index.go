// Package index is the staging area: an ordered, append-only list of
// (path, digest) pairs waiting for the next commit.
package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	derr "dis/internal/errors"
	"dis/internal/object"
	"dis/internal/storage"
)

// Entry records that path's content, as of the last add, is the object
// stored under Digest.
type Entry struct {
	Path   string        `json:"path"`
	Digest object.Digest `json:"hash"`
}

type Index struct {
	backend storage.Backend
}

func New(backend storage.Backend) *Index {
	return &Index{backend: backend}
}

// Snapshot returns the staged entries in stage order. It never mutates the
// index.
func (x *Index) Snapshot() ([]Entry, error) {
	data, err := x.backend.Get(storage.IndexKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, derr.NotInitialized("staging index is missing")
		}
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return Decode(data)
}

// Stage appends an entry. A path staged twice appears twice.
func (x *Index) Stage(path string, digest object.Digest) error {
	if path == "" {
		return derr.ValidationError("path is required", nil)
	}
	if digest == "" {
		return derr.ValidationError("digest is required", map[string]string{"path": path})
	}

	entries, err := x.Snapshot()
	if err != nil {
		return err
	}
	entries = append(entries, Entry{Path: path, Digest: digest})

	data, err := Encode(entries)
	if err != nil {
		return err
	}
	return x.backend.Apply(storage.Write{Key: storage.IndexKey, Value: data})
}

// Clear empties the index on its own. Commits use ClearWrite instead so the
// reset lands together with the HEAD update.
func (x *Index) Clear() error {
	return x.backend.Apply(ClearWrite())
}

// ClearWrite is the backend write that resets the index to empty.
func ClearWrite() storage.Write {
	return storage.Write{Key: storage.IndexKey, Value: []byte("[]")}
}

// Encode serializes entries as a JSON array; nil encodes as [].
func Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding index: %w", err)
	}
	return data, nil
}

// Decode parses a stored index. Anything other than an array of entries
// with a path and a hash is reported as CorruptIndex.
func Decode(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []Entry{}, nil
	}
	if trimmed[0] != '[' {
		return nil, derr.CorruptIndex(fmt.Errorf("expected a JSON array"))
	}

	var entries []Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, derr.CorruptIndex(err)
	}
	for i, e := range entries {
		if e.Path == "" || e.Digest == "" {
			return nil, derr.CorruptIndex(fmt.Errorf("entry %d: path and hash are required", i))
		}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Resolve collapses duplicate paths so the last staged entry wins. Each
// path keeps the position of its first appearance.
func Resolve(entries []Entry) []Entry {
	pos := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))

	for _, e := range entries {
		if i, ok := pos[e.Path]; ok {
			out[i].Digest = e.Digest
			continue
		}
		pos[e.Path] = len(out)
		out = append(out, e)
	}
	return out
}

// Lookup finds the last entry for path.
func Lookup(entries []Entry, path string) (Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Path == path {
			return entries[i], true
		}
	}
	return Entry{}, false
}
