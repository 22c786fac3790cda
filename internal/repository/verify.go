package repository

import (
	"fmt"

	derr "dis/internal/errors"
	"dis/internal/object"

	"go.uber.org/zap"
)

// Problem is one integrity failure found by Verify.
type Problem struct {
	Digest object.Digest
	Path   string
	Err    error
}

func (p Problem) String() string {
	if p.Path != "" {
		return fmt.Sprintf("%s (%s): %v", p.Digest, p.Path, p.Err)
	}
	return fmt.Sprintf("%s: %v", p.Digest, p.Err)
}

type VerifyReport struct {
	Objects  int
	Commits  int
	Problems []Problem
}

func (v *VerifyReport) OK() bool {
	return len(v.Problems) == 0
}

// Verify re-hashes every stored object, then walks history checking that
// each commit parses and every file it references exists. Staged entries
// are checked too.
func (r *Repository) Verify() (*VerifyReport, error) {
	report := &VerifyReport{}

	digests, err := r.objects.Digests()
	if err != nil {
		return nil, err
	}
	for _, d := range digests {
		report.Objects++
		if err := r.objects.Verify(d); err != nil {
			report.Problems = append(report.Problems, Problem{Digest: d, Err: err})
		}
	}

	w := r.graph.Walk()
	for w.Next() {
		e := w.Entry()
		report.Commits++
		for _, f := range e.Commit.Files {
			r.checkReference(report, f.Digest, f.Path)
		}
	}
	if err := w.Err(); err != nil {
		report.Problems = append(report.Problems, Problem{Digest: w.Failed(), Err: fmt.Errorf("history: %w", err)})
	}

	staged, err := r.index.Snapshot()
	if err != nil {
		report.Problems = append(report.Problems, Problem{Err: err})
		return report, nil
	}
	for _, e := range staged {
		r.checkReference(report, e.Digest, e.Path)
	}

	r.logger.Debug("verify",
		zap.Int("objects", report.Objects),
		zap.Int("commits", report.Commits),
		zap.Int("problems", len(report.Problems)))
	return report, nil
}

func (r *Repository) checkReference(report *VerifyReport, d object.Digest, path string) {
	ok, err := r.objects.Has(d)
	if err != nil {
		report.Problems = append(report.Problems, Problem{Digest: d, Path: path, Err: err})
		return
	}
	if !ok {
		report.Problems = append(report.Problems, Problem{Digest: d, Path: path, Err: derr.ObjectNotFound(string(d), nil)})
	}
}
