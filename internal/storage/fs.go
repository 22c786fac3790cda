package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const journalName = ".journal"

// journal records a multi-key Apply so an interrupted one can be finished.
type journal struct {
	ID     string  `json:"id"`
	Writes []Write `json:"writes"`
}

// FileBackend keeps every key as a file below root:
//
//	root/HEAD
//	root/index
//	root/objects/<digest>
type FileBackend struct {
	root   string
	logger *zap.Logger
}

// NewFileBackend opens root and finishes any Apply a previous process left
// half done.
func NewFileBackend(root string, logger *zap.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &FileBackend{root: root, logger: logger}

	if _, err := b.Recover(); err != nil {
		return nil, fmt.Errorf("recovering journal: %w", err)
	}
	return b, nil
}

func (b *FileBackend) Root() string {
	return b.root
}

func (b *FileBackend) Init() error {
	if err := os.MkdirAll(filepath.Join(b.root, strings.TrimSuffix(ObjectPrefix, "/")), 0755); err != nil {
		return fmt.Errorf("creating objects directory: %w", err)
	}
	return nil
}

func (b *FileBackend) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

func (b *FileBackend) Get(key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (b *FileBackend) Has(key string) (bool, error) {
	p, err := b.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (b *FileBackend) Create(key string, value []byte) (bool, error) {
	exists, err := b.Has(key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	p, _ := b.path(key)
	if err := atomicWriteFile(p, value, 0644); err != nil {
		return false, fmt.Errorf("creating %s: %w", key, err)
	}
	return true, nil
}

func (b *FileBackend) Apply(writes ...Write) error {
	for _, w := range writes {
		if err := validateKey(w.Key); err != nil {
			return err
		}
	}

	switch len(writes) {
	case 0:
		return nil
	case 1:
		return b.write(writes[0])
	}

	j := journal{ID: uuid.New().String(), Writes: writes}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling journal: %w", err)
	}
	if err := atomicWriteFile(b.journalPath(), data, 0644); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}

	// From here on the journal guarantees completion on the next open.
	if err := b.replay(j); err != nil {
		return err
	}
	if err := os.Remove(b.journalPath()); err != nil {
		return fmt.Errorf("removing journal: %w", err)
	}
	return nil
}

// Recover replays a leftover journal. It reports whether one was found.
func (b *FileBackend) Recover() (bool, error) {
	data, err := os.ReadFile(b.journalPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var j journal
	if err := json.Unmarshal(data, &j); err != nil {
		return false, fmt.Errorf("decoding journal: %w", err)
	}

	b.logger.Warn("replaying interrupted write",
		zap.String("journal_id", j.ID),
		zap.Int("writes", len(j.Writes)))

	if err := b.replay(j); err != nil {
		return false, err
	}
	if err := os.Remove(b.journalPath()); err != nil {
		return false, fmt.Errorf("removing journal: %w", err)
	}
	return true, nil
}

func (b *FileBackend) replay(j journal) error {
	for _, w := range j.Writes {
		if err := b.write(w); err != nil {
			return fmt.Errorf("applying journal %s: %w", j.ID, err)
		}
	}
	return nil
}

func (b *FileBackend) write(w Write) error {
	p, err := b.path(w.Key)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(p, w.Value, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", w.Key, err)
	}
	return nil
}

func (b *FileBackend) Keys(prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		// Temp files and the journal are dot-prefixed.
		if strings.HasPrefix(d.Name(), ".") && path != b.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (b *FileBackend) Close() error {
	return nil
}

func (b *FileBackend) journalPath() string {
	return filepath.Join(b.root, journalName)
}

// atomicWriteFile writes data to a temporary file in the target directory
// and renames it over path, so readers see either the old or new content.
func atomicWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
