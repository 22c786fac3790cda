package storage

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Open builds the backend named by kind rooted at the repository state
// directory dir.
func Open(kind, dir string, logger *zap.Logger) (Backend, error) {
	switch kind {
	case "fs", "":
		return NewFileBackend(dir, logger)
	case "badger":
		return OpenBadger(filepath.Join(dir, "db"))
	case "sqlite":
		return OpenSQLite(filepath.Join(dir, "dis.db"))
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
