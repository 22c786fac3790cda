package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	derr "dis/internal/errors"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

var commitLine = regexp.MustCompile(`^\[([0-9a-f]{8})\]`)

func TestCLI(t *testing.T) {
	color.NoColor = true

	for _, backend := range []string{"fs", "badger", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			t.Setenv("DIS_CONFIG", "")

			out := mustRun(t, "init", "--backend", backend)
			assert.Contains(t, out, "Initialized empty dis repository")

			out = mustRun(t, "init")
			assert.Contains(t, out, "already initialized")

			out = mustRun(t, "history")
			assert.Contains(t, out, "No commits yet")

			require.NoError(t, os.WriteFile("demo.txt", []byte("a\nb\n"), 0644))
			out = mustRun(t, "add", "demo.txt")
			assert.Contains(t, out, "Added demo.txt")

			out = mustRun(t, "status")
			assert.Contains(t, out, "demo.txt")

			out = mustRun(t, "commit", "first")
			require.Regexp(t, commitLine, out)

			require.NoError(t, os.WriteFile("demo.txt", []byte("a\nc\n"), 0644))
			mustRun(t, "add", filepath.Join(dir, "demo.txt"))
			out = mustRun(t, "commit", "second", "commit")
			assert.Contains(t, out, "second commit")

			out = mustRun(t, "history")
			assert.Regexp(t, `(?s)second commit.*first`, out)

			out = mustRun(t, "history", "-n", "1")
			assert.NotContains(t, out, "first")
			head := regexp.MustCompile(`commit ([0-9a-f]{40})`).FindStringSubmatch(out)
			require.Len(t, head, 2)

			out = mustRun(t, "show", head[1])
			assert.Contains(t, out, "File: demo.txt +1 -1")
			assert.Contains(t, out, "a\nb\nc\n")

			out = mustRun(t, "show", "-U", "0", head[1])
			assert.Contains(t, out, "@@ -2,1 +2,1 @@\n-b\n+c\n")

			out = mustRun(t, "verify")
			assert.Contains(t, out, "OK")

			_, err := run(t, "show", "0000000000000000000000000000000000000000")
			assert.ErrorIs(t, err, derr.ErrCommitNotFound)

			_, err = run(t, "add", "missing.txt")
			assert.ErrorIs(t, err, derr.ErrFileNotFound)
		})
	}
}

func TestCLI_NotInitialized(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DIS_CONFIG", "")

	_, err := run(t, "status")
	assert.ErrorIs(t, err, derr.ErrNotInitialized)

	_, err = os.Stat(".dis")
	assert.True(t, os.IsNotExist(err), "status must not create the repository")
}

func TestCLI_MemoryBackendRejected(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DIS_CONFIG", "")

	out, err := run(t, "init", "--backend", "memory")
	assert.ErrorIs(t, err, derr.ErrValidation)
	assert.NotContains(t, out, "Initialized")

	_, err = os.Stat(filepath.Join(dir, ".dis", "config.json"))
	assert.True(t, os.IsNotExist(err), "a rejected init must not record the backend")

	t.Run("configured memory backend", func(t *testing.T) {
		cfgPath := filepath.Join(dir, "memory.json")
		require.NoError(t, os.WriteFile(cfgPath, []byte(`{"storage":{"backend":"memory"}}`), 0644))

		_, err := run(t, "--config", cfgPath, "init")
		assert.ErrorIs(t, err, derr.ErrValidation)

		_, err = run(t, "--config", cfgPath, "status")
		assert.ErrorIs(t, err, derr.ErrValidation)
	})
}
