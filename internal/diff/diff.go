// Package diff computes line-level differences between two texts using a
// longest common subsequence table.
package diff

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxCells bounds the LCS table one diff may allocate.
const DefaultMaxCells = 1 << 25

// ErrTooLarge is returned when two inputs differ over more lines than the
// engine's table limit allows.
var ErrTooLarge = errors.New("diff too large")

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Line is one step of the edit script. OldNum and NewNum are 1-based line
// numbers, zero on the side the line does not exist on. Content keeps its
// line terminator.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

type SegmentType string

const (
	Added     SegmentType = "added"
	Removed   SegmentType = "removed"
	Unchanged SegmentType = "unchanged"
)

// Segment is a run of consecutive lines sharing one tag.
type Segment struct {
	Type  SegmentType `json:"type"`
	Value string      `json:"value"`
	Count int         `json:"count"`
}

type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Changes   int `json:"changes"`
}

// Hunk represents a continuous section of changes with surrounding context
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Result contains the complete diff information
type Result struct {
	Lines    []Line
	Segments []Segment
	Hunks    []Hunk
	Stats    Stats
}

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
	maxCells     int
}

type Option func(*Engine)

// WithMaxCells overrides DefaultMaxCells.
func WithMaxCells(n int) Option {
	return func(e *Engine) {
		e.maxCells = n
	}
}

// NewEngine creates a diff engine whose hunks carry contextLines lines of
// context on each side.
func NewEngine(contextLines int, opts ...Option) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	e := &Engine{contextLines: contextLines, maxCells: DefaultMaxCells}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) (*Result, error) {
	lines, err := compute(oldContent, newContent, e.maxCells)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Lines:    lines,
		Segments: Segments(lines),
		Hunks:    e.hunks(lines),
	}
	for _, line := range lines {
		switch line.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result, nil
}

// Compute returns the edit script turning oldContent into newContent. It
// covers every line of both inputs. At a change point removed lines come
// before added ones.
func Compute(oldContent, newContent []byte) ([]Line, error) {
	return compute(oldContent, newContent, DefaultMaxCells)
}

func compute(oldContent, newContent []byte, maxCells int) ([]Line, error) {
	oldLines := SplitLines(oldContent)
	newLines := SplitLines(newContent)

	// Backtrack from the end, so the script is built in reverse. A common
	// suffix always backtracks as context and needs no table.
	var rev []Line
	i, j := len(oldLines), len(newLines)
	for i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]) {
		rev = append(rev, Line{Type: Context, Content: string(oldLines[i-1]), OldNum: i, NewNum: j})
		i--
		j--
	}

	if i > maxCells/(j+1)-1 {
		return nil, fmt.Errorf("%w: %d old and %d new lines to compare", ErrTooLarge, i, j)
	}
	lcs := computeLCS(oldLines[:i], newLines[:j])

	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]):
			rev = append(rev, Line{Type: Context, Content: string(oldLines[i-1]), OldNum: i, NewNum: j})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			rev = append(rev, Line{Type: Addition, Content: string(newLines[j-1]), NewNum: j})
			j--
		default:
			rev = append(rev, Line{Type: Deletion, Content: string(oldLines[i-1]), OldNum: i})
			i--
		}
	}

	lines := make([]Line, len(rev))
	for k, line := range rev {
		lines[len(rev)-1-k] = line
	}
	return lines, nil
}

// SplitLines splits content after every newline. A final line without a
// terminator is kept as is.
func SplitLines(content []byte) [][]byte {
	var lines [][]byte
	for len(content) > 0 {
		n := bytes.IndexByte(content, '\n')
		if n < 0 {
			lines = append(lines, content)
			break
		}
		lines = append(lines, content[:n+1])
		content = content[n+1:]
	}
	return lines
}

// computeLCS creates a matrix for longest common subsequence
func computeLCS(oldLines, newLines [][]byte) [][]int {
	matrix := make([][]int, len(oldLines)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(newLines)+1)
	}

	for i := 1; i <= len(oldLines); i++ {
		for j := 1; j <= len(newLines); j++ {
			if bytes.Equal(oldLines[i-1], newLines[j-1]) {
				matrix[i][j] = matrix[i-1][j-1] + 1
			} else {
				matrix[i][j] = max(matrix[i-1][j], matrix[i][j-1])
			}
		}
	}

	return matrix
}

// Segments merges an edit script into runs of equal type.
func Segments(lines []Line) []Segment {
	var segments []Segment
	var value strings.Builder
	count := 0

	for k, line := range lines {
		value.WriteString(line.Content)
		count++
		if k+1 < len(lines) && lines[k+1].Type == line.Type {
			continue
		}

		segments = append(segments, Segment{
			Type:  segmentType(line.Type),
			Value: value.String(),
			Count: count,
		})
		value.Reset()
		count = 0
	}
	return segments
}

func segmentType(t LineType) SegmentType {
	switch t {
	case Addition:
		return Added
	case Deletion:
		return Removed
	default:
		return Unchanged
	}
}

// hunks groups changes that are at most two context windows apart.
func (e *Engine) hunks(lines []Line) []Hunk {
	// oldBefore[k] and newBefore[k] count the lines of each side preceding
	// lines[k].
	oldBefore := make([]int, len(lines)+1)
	newBefore := make([]int, len(lines)+1)
	for k, line := range lines {
		oldBefore[k+1] = oldBefore[k]
		newBefore[k+1] = newBefore[k]
		if line.Type != Addition {
			oldBefore[k+1]++
		}
		if line.Type != Deletion {
			newBefore[k+1]++
		}
	}

	var hunks []Hunk
	n := len(lines)
	for i := 0; i < n; {
		for i < n && lines[i].Type == Context {
			i++
		}
		if i >= n {
			break
		}

		start := max(0, i-e.contextLines)
		end := i + 1
		for j := i + 1; j < n; {
			if lines[j].Type != Context {
				end = j + 1
				j++
				continue
			}
			k := j
			for k < n && lines[k].Type == Context {
				k++
			}
			if k == n || k-j > 2*e.contextLines {
				break
			}
			j = k
		}
		stop := min(n, end+e.contextLines)

		hunk := Hunk{
			OldLines: oldBefore[stop] - oldBefore[start],
			NewLines: newBefore[stop] - newBefore[start],
			Lines:    lines[start:stop],
		}
		hunk.OldStart = oldBefore[start]
		if hunk.OldLines > 0 {
			hunk.OldStart++
		}
		hunk.NewStart = newBefore[start]
		if hunk.NewLines > 0 {
			hunk.NewStart++
		}
		hunks = append(hunks, hunk)

		i = stop
	}
	return hunks
}

// Format returns the hunks in unified diff form.
func (r *Result) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+")
			case Deletion:
				buf.WriteString("-")
			case Context:
				buf.WriteString(" ")
			}
			buf.WriteString(strings.TrimSuffix(line.Content, "\n"))
			buf.WriteString("\n")
			if !strings.HasSuffix(line.Content, "\n") {
				buf.WriteString("\\ No newline at end of file\n")
			}
		}
	}

	return buf.String()
}
