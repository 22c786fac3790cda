package commit

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	derr "dis/internal/errors"
	"dis/internal/index"
	"dis/internal/object"
	"dis/internal/storage"

	"go.uber.org/zap"
)

// Graph creates commits and reads them back. HEAD is its only mutable
// state, and Commit is its only writer.
type Graph struct {
	backend storage.Backend
	objects *object.Store
	index   *index.Index
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Graph)

// WithClock replaces time.Now for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGraph(backend storage.Backend, objects *object.Store, idx *index.Index, opts ...Option) *Graph {
	g := &Graph{
		backend: backend,
		objects: objects,
		index:   idx,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Head returns the latest commit digest, or "" before the first commit.
func (g *Graph) Head() (object.Digest, error) {
	data, err := g.backend.Get(storage.HeadKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return object.Digest(bytes.TrimSpace(data)), nil
}

// Get loads the commit stored under d.
func (g *Graph) Get(d object.Digest) (*Commit, error) {
	data, err := g.objects.Get(d)
	if err != nil {
		return nil, err
	}
	return Decode(d, data)
}

// Commit snapshots the index into a new commit whose parent is the current
// HEAD. The commit object is stored first; HEAD and the cleared index are
// then written as one atomic unit, so a failure leaves at most an
// unreferenced object behind.
func (g *Graph) Commit(message string) (object.Digest, *Commit, error) {
	parent, err := g.Head()
	if err != nil {
		return "", nil, err
	}
	if parent != "" {
		if _, err := g.Get(parent); err != nil {
			return "", nil, fmt.Errorf("loading parent commit: %w", err)
		}
	}

	files, err := g.index.Snapshot()
	if err != nil {
		return "", nil, err
	}

	c := &Commit{
		Timestamp: g.now().UTC().Format(TimeLayout),
		Message:   message,
		Files:     files,
		Parent:    parent,
	}

	data, err := Encode(c)
	if err != nil {
		return "", nil, err
	}
	d, err := g.objects.Put(data)
	if err != nil {
		return "", nil, fmt.Errorf("storing commit: %w", err)
	}

	err = g.backend.Apply(
		storage.Write{Key: storage.HeadKey, Value: []byte(d)},
		index.ClearWrite(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("advancing HEAD: %w", err)
	}

	g.logger.Debug("commit",
		zap.String("digest", d.String()),
		zap.String("parent", parent.String()),
		zap.Int("files", len(files)))

	return d, c, nil
}

// Entry is one step of a history walk.
type Entry struct {
	Digest object.Digest
	Commit *Commit
}

// Walker yields commits from HEAD back to the root, loading one commit per
// call to Next.
//
//	w := g.Walk()
//	for w.Next() {
//		e := w.Entry()
//	}
//	if err := w.Err(); err != nil { ... }
type Walker struct {
	graph   *Graph
	from    object.Digest
	fixed   bool
	next    object.Digest
	entry   Entry
	err     error
	started bool
	done    bool
}

func (g *Graph) Walk() *Walker {
	return &Walker{graph: g}
}

// WalkFrom starts a walk at d instead of HEAD.
func (g *Graph) WalkFrom(d object.Digest) *Walker {
	return &Walker{graph: g, from: d, fixed: true}
}

func (w *Walker) Next() bool {
	if w.done || w.err != nil {
		return false
	}

	if !w.started {
		w.started = true
		w.next = w.from
		if !w.fixed {
			head, err := w.graph.Head()
			if err != nil {
				w.err = err
				return false
			}
			w.next = head
		}
	}

	if w.next == "" {
		w.done = true
		return false
	}

	c, err := w.graph.Get(w.next)
	if err != nil {
		if w.entry.Commit != nil {
			err = fmt.Errorf("parent of %s: %w", w.entry.Digest, err)
		}
		w.err = err
		return false
	}

	w.entry = Entry{Digest: w.next, Commit: c}
	w.next = c.Parent
	return true
}

func (w *Walker) Entry() Entry {
	return w.entry
}

func (w *Walker) Err() error {
	return w.err
}

// Failed returns the digest the walk could not load, or "" when it did not
// fail on a commit (including a failure to read HEAD).
func (w *Walker) Failed() object.Digest {
	if w.err == nil {
		return ""
	}
	return w.next
}

// Reset rewinds the walker to its starting point. A walker from HEAD
// re-reads HEAD.
func (w *Walker) Reset() {
	*w = Walker{graph: w.graph, from: w.from, fixed: w.fixed}
}

// History collects up to limit commits, most recent first. A limit of zero
// or less collects the whole chain.
func (g *Graph) History(limit int) ([]Entry, error) {
	var out []Entry
	w := g.Walk()
	for w.Next() {
		out = append(out, w.Entry())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IsMissing reports whether err means a digest did not resolve to a commit.
func IsMissing(err error) bool {
	return errors.Is(err, derr.ErrObjectNotFound) || errors.Is(err, derr.ErrCorruptCommit)
}
