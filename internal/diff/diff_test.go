package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegments(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []Segment
	}{
		{
			name: "single line replaced",
			old:  "a\nb\n",
			new:  "a\nc\n",
			want: []Segment{
				{Type: Unchanged, Value: "a\n", Count: 1},
				{Type: Removed, Value: "b\n", Count: 1},
				{Type: Added, Value: "c\n", Count: 1},
			},
		},
		{
			name: "identical",
			old:  "a\nb\n",
			new:  "a\nb\n",
			want: []Segment{{Type: Unchanged, Value: "a\nb\n", Count: 2}},
		},
		{
			name: "from empty",
			old:  "",
			new:  "x\ny\n",
			want: []Segment{{Type: Added, Value: "x\ny\n", Count: 2}},
		},
		{
			name: "to empty",
			old:  "x\n",
			new:  "",
			want: []Segment{{Type: Removed, Value: "x\n", Count: 1}},
		},
		{
			name: "both empty",
			old:  "",
			new:  "",
			want: nil,
		},
		{
			name: "block replaced removes before adding",
			old:  "x\ny\n",
			new:  "p\nq\n",
			want: []Segment{
				{Type: Removed, Value: "x\ny\n", Count: 2},
				{Type: Added, Value: "p\nq\n", Count: 2},
			},
		},
		{
			name: "insert in the middle",
			old:  "a\nc\n",
			new:  "a\nb\nc\n",
			want: []Segment{
				{Type: Unchanged, Value: "a\n", Count: 1},
				{Type: Added, Value: "b\n", Count: 1},
				{Type: Unchanged, Value: "c\n", Count: 1},
			},
		},
		{
			name: "missing final newline",
			old:  "a\nb",
			new:  "a\nb\n",
			want: []Segment{
				{Type: Unchanged, Value: "a\n", Count: 1},
				{Type: Removed, Value: "b", Count: 1},
				{Type: Added, Value: "b\n", Count: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEngine(3).Diff([]byte(tt.old), []byte(tt.new))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Segments)
		})
	}
}

// Every line of both inputs appears exactly once, in order.
func TestSegmentsCoverBothInputs(t *testing.T) {
	pairs := [][2]string{
		{"a\nb\nc\nd\n", "b\nx\nd\ne\n"},
		{"1\n2\n3\n", "3\n2\n1\n"},
		{"same\n", "same\n"},
		{"", "only new\n"},
	}

	for _, p := range pairs {
		var oldText, newText strings.Builder
		lines, err := Compute([]byte(p[0]), []byte(p[1]))
		require.NoError(t, err)
		for _, s := range Segments(lines) {
			if s.Type != Added {
				oldText.WriteString(s.Value)
			}
			if s.Type != Removed {
				newText.WriteString(s.Value)
			}
		}
		assert.Equal(t, p[0], oldText.String())
		assert.Equal(t, p[1], newText.String())
	}
}

func TestStats(t *testing.T) {
	r, err := NewEngine(0).Diff([]byte("a\nb\nc\n"), []byte("a\nB\nc\nd\n"))
	require.NoError(t, err)
	assert.Equal(t, Stats{Additions: 2, Deletions: 1, Changes: 3}, r.Stats)
}

func TestLineNumbers(t *testing.T) {
	lines, err := Compute([]byte("a\nb\n"), []byte("a\nc\n"))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, Line{Type: Context, Content: "a\n", OldNum: 1, NewNum: 1}, lines[0])
	assert.Equal(t, Line{Type: Deletion, Content: "b\n", OldNum: 2}, lines[1])
	assert.Equal(t, Line{Type: Addition, Content: "c\n", NewNum: 2}, lines[2])
}

func TestHunks(t *testing.T) {
	var old, cur strings.Builder
	for i := 1; i <= 20; i++ {
		line := string(rune('a'+i-1)) + "\n"
		old.WriteString(line)
		switch i {
		case 3:
			cur.WriteString("C\n")
		case 17:
			cur.WriteString("Q\n")
		default:
			cur.WriteString(line)
		}
	}

	r, err := NewEngine(2).Diff([]byte(old.String()), []byte(cur.String()))
	require.NoError(t, err)
	require.Len(t, r.Hunks, 2)

	first := r.Hunks[0]
	assert.Equal(t, 1, first.OldStart)
	assert.Equal(t, 5, first.OldLines)
	assert.Equal(t, 1, first.NewStart)
	assert.Equal(t, 5, first.NewLines)

	second := r.Hunks[1]
	assert.Equal(t, 15, second.OldStart)
	assert.Equal(t, 5, second.OldLines)

	// Changes closer than two context windows share a hunk.
	merged, err := NewEngine(10).Diff([]byte(old.String()), []byte(cur.String()))
	require.NoError(t, err)
	assert.Len(t, merged.Hunks, 1)

	same, err := NewEngine(3).Diff([]byte("x\n"), []byte("x\n"))
	require.NoError(t, err)
	assert.Empty(t, same.Hunks)
}

func TestFormat(t *testing.T) {
	r, err := NewEngine(1).Diff([]byte("a\nb\nc\n"), []byte("a\nc\nd"))
	require.NoError(t, err)

	want := "" +
		"@@ -1,3 +1,3 @@\n" +
		" a\n" +
		"-b\n" +
		" c\n" +
		"+d\n" +
		"\\ No newline at end of file\n"
	assert.Equal(t, want, r.Format())
}

func TestFormatPureAddition(t *testing.T) {
	r, err := NewEngine(0).Diff(nil, []byte("x\n"))
	require.NoError(t, err)
	assert.Equal(t, "@@ -0,0 +1,1 @@\n+x\n", r.Format())
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(nil))
	assert.Equal(t, [][]byte{[]byte("a\n"), []byte("b")}, SplitLines([]byte("a\nb")))
	assert.Equal(t, [][]byte{[]byte("\n"), []byte("\n")}, SplitLines([]byte("\n\n")))
}

func TestTableLimit(t *testing.T) {
	lines := func(prefix string, n int) []byte {
		var b strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "%s%d\n", prefix, i)
		}
		return []byte(b.String())
	}
	e := NewEngine(3, WithMaxCells(100))

	_, err := e.Diff(lines("old", 20), lines("new", 20))
	assert.ErrorIs(t, err, ErrTooLarge)

	// A shared tail is matched without the table.
	tail := lines("tail", 500)
	r, err := e.Diff(append([]byte("a\n"), tail...), append([]byte("b\n"), tail...))
	require.NoError(t, err)
	assert.Equal(t, Stats{Additions: 1, Deletions: 1, Changes: 2}, r.Stats)
	require.Len(t, r.Segments, 3)
	assert.Equal(t, Removed, r.Segments[0].Type)
	assert.Equal(t, Added, r.Segments[1].Type)
	assert.Equal(t, 500, r.Segments[2].Count)

	// Results match an unbounded engine.
	want, err := NewEngine(3).Diff(lines("x", 8), lines("x", 9))
	require.NoError(t, err)
	got, err := e.Diff(lines("x", 8), lines("x", 9))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
