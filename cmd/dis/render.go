package main

import (
	"fmt"
	"io"
	"strings"

	"dis/internal/commit"
	"dis/internal/diff"
	"dis/internal/object"
	"dis/internal/repository"

	"github.com/fatih/color"
)

var (
	addedColor     = color.New(color.FgGreen)
	removedColor   = color.New(color.FgRed)
	unchangedColor = color.New(color.FgHiBlack)
	headerColor    = color.New(color.FgCyan)
	commitColor    = color.New(color.FgYellow)
	fileColor      = color.New(color.Bold)
)

func renderCommit(w io.Writer, e commit.Entry) {
	commitColor.Fprintf(w, "commit %s\n", e.Digest)
	if e.Commit.HasParent() {
		fmt.Fprintf(w, "Parent: %s\n", e.Commit.Parent)
	}
	fmt.Fprintf(w, "Date:   %s\n", e.Commit.Timestamp)
	fmt.Fprintf(w, "\n    %s\n\n", e.Commit.Message)
}

func renderCommitHeader(w io.Writer, d object.Digest, c *commit.Commit) {
	renderCommit(w, commit.Entry{Digest: d, Commit: c})
}

// renderFileChange prints a file with each diff segment in its own colour.
// Introduced files are printed as plain content.
func renderFileChange(w io.Writer, fc repository.FileChange) {
	if fc.Introduced {
		fileColor.Fprintf(w, "File: %s (new)\n", fc.Path)
		writeText(w, nil, string(fc.Content))
		fmt.Fprintln(w)
		return
	}

	fileColor.Fprintf(w, "File: %s", fc.Path)
	fmt.Fprintf(w, " %s %s\n",
		addedColor.Sprintf("+%d", fc.Stats.Additions),
		removedColor.Sprintf("-%d", fc.Stats.Deletions))

	for _, s := range fc.Segments {
		switch s.Type {
		case diff.Added:
			writeText(w, addedColor, s.Value)
		case diff.Removed:
			writeText(w, removedColor, s.Value)
		default:
			writeText(w, unchangedColor, s.Value)
		}
	}
	fmt.Fprintln(w)
}

// renderHunks prints the unified form of r.
func renderHunks(w io.Writer, fc repository.FileChange, r *diff.Result) {
	fileColor.Fprintf(w, "--- %s\t%s\n", fc.Path, fc.ParentDigest.Short())
	fileColor.Fprintf(w, "+++ %s\t%s\n", fc.Path, fc.Digest.Short())

	for _, line := range strings.SplitAfter(r.Format(), "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "@@"):
			headerColor.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			addedColor.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			removedColor.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
	fmt.Fprintln(w)
}

func renderStatus(w io.Writer, st *repository.Status) {
	if st.Head == "" {
		fmt.Fprintln(w, "No commits yet")
	} else {
		fmt.Fprintf(w, "HEAD: %s\n", st.Head)
	}

	if len(st.Staged) == 0 {
		fmt.Fprintln(w, "Nothing staged")
		return
	}

	fmt.Fprintf(w, "\nStaged for next commit:\n")
	fmt.Fprintln(w, `  (use "dis commit <message>" to record them)`)
	for _, e := range st.Staged {
		fmt.Fprintf(w, "\t%s %s  %s\n", addedColor.Sprint("+"), e.Path, e.Digest.Short())
	}
	if dup := st.Raw - len(st.Staged); dup > 0 {
		fmt.Fprintf(w, "\n%d earlier stagings are superseded\n", dup)
	}
}

func renderVerify(w io.Writer, report *repository.VerifyReport) {
	fmt.Fprintf(w, "Checked %d objects and %d commits\n", report.Objects, report.Commits)
	if report.OK() {
		addedColor.Fprintln(w, "OK")
		return
	}
	for _, p := range report.Problems {
		removedColor.Fprintf(w, "  %s\n", p)
	}
}

// writeText prints s in c, or plain when c is nil, and makes sure output
// ends on a fresh line.
func writeText(w io.Writer, c *color.Color, s string) {
	if c != nil {
		c.Fprint(w, s)
	} else {
		fmt.Fprint(w, s)
	}
	if s != "" && !strings.HasSuffix(s, "\n") {
		fmt.Fprintln(w)
	}
}
