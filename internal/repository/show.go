package repository

import (
	"fmt"

	"dis/internal/commit"
	"dis/internal/diff"
	derr "dis/internal/errors"
	"dis/internal/index"
	"dis/internal/object"

	"go.uber.org/zap"
)

// FileChange is one file of a commit compared with the parent commit.
// Introduced files have no parent version and no segments.
type FileChange struct {
	Path          string
	Digest        object.Digest
	Content       []byte
	ParentDigest  object.Digest
	ParentContent []byte
	Introduced    bool
	Segments      []diff.Segment
	Stats         diff.Stats
}

// Show reconstructs every file of commit d and diffs it against the same
// path in the parent commit. A path staged more than once in a commit is
// shown once, with its last staged content. Show never writes.
func (r *Repository) Show(d object.Digest) ([]FileChange, error) {
	c, err := r.graph.Get(d)
	if err != nil {
		if commit.IsMissing(err) {
			return nil, derr.CommitNotFound(string(d), err)
		}
		return nil, err
	}

	var parent *commit.Commit
	if c.HasParent() {
		if parent, err = r.graph.Get(c.Parent); err != nil {
			return nil, err
		}
	}

	files := index.Resolve(c.Files)
	changes := make([]FileChange, 0, len(files))
	for _, f := range files {
		fc, err := r.fileChange(f, parent)
		if err != nil {
			return nil, err
		}
		changes = append(changes, fc)
	}

	r.logger.Debug("show", zap.String("digest", d.String()), zap.Int("files", len(changes)))
	return changes, nil
}

func (r *Repository) fileChange(f index.Entry, parent *commit.Commit) (FileChange, error) {
	content, err := r.objects.Get(f.Digest)
	if err != nil {
		return FileChange{}, err
	}

	fc := FileChange{
		Path:       f.Path,
		Digest:     f.Digest,
		Content:    content,
		Introduced: true,
	}
	if parent == nil {
		return fc, nil
	}

	prev, ok := index.Lookup(parent.Files, f.Path)
	if !ok {
		return fc, nil
	}
	prevContent, err := r.objects.Get(prev.Digest)
	if err != nil {
		return FileChange{}, err
	}

	result, err := r.diff.Diff(prevContent, content)
	if err != nil {
		return FileChange{}, fmt.Errorf("diffing %s: %w", f.Path, err)
	}
	fc.Introduced = false
	fc.ParentDigest = prev.Digest
	fc.ParentContent = prevContent
	fc.Segments = result.Segments
	fc.Stats = result.Stats
	return fc, nil
}
