package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestWriteText(t *testing.T) {
	saved := color.NoColor
	t.Cleanup(func() { color.NoColor = saved })

	tests := []struct {
		name     string
		noColor  bool
		c        *color.Color
		in       string
		newlines int
	}{
		{name: "plain terminated", c: nil, in: "a\n", newlines: 1},
		{name: "plain unterminated", c: nil, in: "a", newlines: 1},
		{name: "coloured terminated", c: addedColor, in: "a\nb\n", newlines: 2},
		{name: "coloured unterminated", c: removedColor, in: "a\nb", newlines: 2},
		{name: "no colour unterminated", noColor: true, c: unchangedColor, in: "b", newlines: 1},
		{name: "empty", c: addedColor, in: "", newlines: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			color.NoColor = tt.noColor

			var buf bytes.Buffer
			writeText(&buf, tt.c, tt.in)
			assert.Equal(t, tt.newlines, strings.Count(buf.String(), "\n"))
			assert.Contains(t, buf.String(), strings.TrimSuffix(tt.in, "\n"))
		})
	}
}
