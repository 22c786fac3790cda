// Package repository ties the object store, staging index, commit graph and
// diff engine to one storage backend.
package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dis/internal/commit"
	"dis/internal/diff"
	derr "dis/internal/errors"
	"dis/internal/index"
	"dis/internal/object"
	"dis/internal/storage"

	"go.uber.org/zap"
)

type options struct {
	hash         object.HashFunc
	now          func() time.Time
	cacheSize    int
	contextLines int
	workDir      string
	logger       *zap.Logger
}

type Option func(*options)

// WithHash replaces SHA-1 as the content hash.
func WithHash(h object.HashFunc) Option {
	return func(o *options) { o.hash = h }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCacheSize sets how many objects are kept in memory. Zero disables
// the cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

func WithContextLines(n int) Option {
	return func(o *options) { o.contextLines = n }
}

// WithWorkDir makes absolute paths given to Add relative to dir.
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Repository is a handle on one repository's state. It assumes a single
// writer.
type Repository struct {
	backend storage.Backend
	objects *object.Store
	index   *index.Index
	graph   *commit.Graph
	diff    *diff.Engine
	workDir string
	logger  *zap.Logger
}

func newRepository(backend storage.Backend, opts []Option) (*Repository, error) {
	o := options{
		now:          time.Now,
		cacheSize:    256,
		contextLines: 3,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	objects, err := object.NewStore(backend, object.Options{Hash: o.hash, CacheSize: o.cacheSize})
	if err != nil {
		return nil, err
	}
	idx := index.New(backend)

	return &Repository{
		backend: backend,
		objects: objects,
		index:   idx,
		graph:   commit.NewGraph(backend, objects, idx, commit.WithClock(o.now), commit.WithLogger(o.logger)),
		diff:    diff.NewEngine(o.contextLines),
		workDir: o.workDir,
		logger:  o.logger,
	}, nil
}

// Init prepares backend for use. Keys that already exist are left alone, so
// initializing twice is harmless; created reports whether anything was
// written.
func Init(backend storage.Backend, opts ...Option) (repo *Repository, created bool, err error) {
	if err := backend.Init(); err != nil {
		return nil, false, fmt.Errorf("initializing storage: %w", err)
	}

	headCreated, err := backend.Create(storage.HeadKey, []byte{})
	if err != nil {
		return nil, false, fmt.Errorf("creating HEAD: %w", err)
	}
	indexCreated, err := backend.Create(storage.IndexKey, []byte("[]"))
	if err != nil {
		return nil, false, fmt.Errorf("creating index: %w", err)
	}

	repo, err = newRepository(backend, opts)
	if err != nil {
		return nil, false, err
	}
	created = headCreated || indexCreated
	repo.logger.Debug("init", zap.Bool("created", created))
	return repo, created, nil
}

// Open returns a handle on an initialized backend.
func Open(backend storage.Backend, opts ...Option) (*Repository, error) {
	for _, key := range []string{storage.HeadKey, storage.IndexKey} {
		ok, err := backend.Has(key)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", key, err)
		}
		if !ok {
			return nil, derr.NotInitialized(fmt.Sprintf("repository is not initialized (missing %s)", key))
		}
	}
	return newRepository(backend, opts)
}

func (r *Repository) Close() error {
	return r.backend.Close()
}

// Add reads the file at path and stages its content. Nothing is written if
// the file cannot be read.
func (r *Repository) Add(path string) (index.Entry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return index.Entry{}, derr.FileNotFound(path, err)
	}
	return r.Stage(r.stagedPath(path), content)
}

// Stage stores content and records it under path in the index.
func (r *Repository) Stage(path string, content []byte) (index.Entry, error) {
	if path == "" || path == "." {
		return index.Entry{}, derr.ValidationError("path is required", nil)
	}

	d, err := r.objects.Put(content)
	if err != nil {
		return index.Entry{}, err
	}
	if err := r.index.Stage(path, d); err != nil {
		return index.Entry{}, err
	}

	r.logger.Debug("stage", zap.String("path", path), zap.String("digest", d.String()))
	return index.Entry{Path: path, Digest: d}, nil
}

func (r *Repository) stagedPath(path string) string {
	if r.workDir != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(r.workDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// Commit records the staged entries as a new commit on top of HEAD and
// clears the index.
func (r *Repository) Commit(message string) (commit.Entry, error) {
	d, c, err := r.graph.Commit(message)
	if err != nil {
		return commit.Entry{}, err
	}
	return commit.Entry{Digest: d, Commit: c}, nil
}

// Head returns the latest commit digest, or "" if there are no commits.
func (r *Repository) Head() (object.Digest, error) {
	return r.graph.Head()
}

func (r *Repository) GetCommit(d object.Digest) (*commit.Commit, error) {
	return r.graph.Get(d)
}

// Object returns raw object content.
func (r *Repository) Object(d object.Digest) ([]byte, error) {
	return r.objects.Get(d)
}

// Walk starts a lazy walk from HEAD to the root commit.
func (r *Repository) Walk() *commit.Walker {
	return r.graph.Walk()
}

func (r *Repository) History(limit int) ([]commit.Entry, error) {
	return r.graph.History(limit)
}

// Hash returns the digest content would be stored under.
func (r *Repository) Hash(content []byte) object.Digest {
	return r.objects.Hash(content)
}

// Diff runs the repository's diff engine over two contents.
func (r *Repository) Diff(oldContent, newContent []byte) (*diff.Result, error) {
	return r.diff.Diff(oldContent, newContent)
}

// Status describes HEAD and what the next commit would contain.
type Status struct {
	Head   object.Digest
	Staged []index.Entry // one entry per path, last staged wins
	Raw    int           // entries in the index, duplicates included
}

func (r *Repository) Status() (*Status, error) {
	head, err := r.graph.Head()
	if err != nil {
		return nil, err
	}
	entries, err := r.index.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Status{
		Head:   head,
		Staged: index.Resolve(entries),
		Raw:    len(entries),
	}, nil
}
