package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	fsb, err := NewFileBackend(filepath.Join(t.TempDir(), ".dis"), nil)
	require.NoError(t, err)

	bdb, err := OpenBadgerInMemory()
	require.NoError(t, err)

	sdb, err := OpenSQLite(filepath.Join(t.TempDir(), "dis.db"))
	require.NoError(t, err)

	all := map[string]Backend{
		"fs":     fsb,
		"memory": NewMemoryBackend(),
		"badger": bdb,
		"sqlite": sdb,
	}
	t.Cleanup(func() {
		for _, b := range all {
			b.Close()
		}
	})
	return all
}

func TestBackendContract(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Init())
			require.NoError(t, b.Init())

			t.Run("Get missing", func(t *testing.T) {
				_, err := b.Get("objects/missing")
				assert.ErrorIs(t, err, ErrNotFound)

				ok, err := b.Has("objects/missing")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("Create is write-once", func(t *testing.T) {
				created, err := b.Create("objects/aa", []byte("first"))
				require.NoError(t, err)
				assert.True(t, created)

				created, err = b.Create("objects/aa", []byte("second"))
				require.NoError(t, err)
				assert.False(t, created)

				v, err := b.Get("objects/aa")
				require.NoError(t, err)
				assert.Equal(t, "first", string(v))
			})

			t.Run("Create empty value", func(t *testing.T) {
				created, err := b.Create(HeadKey, []byte{})
				require.NoError(t, err)
				assert.True(t, created)

				v, err := b.Get(HeadKey)
				require.NoError(t, err)
				assert.Empty(t, v)
			})

			t.Run("Apply replaces every key", func(t *testing.T) {
				require.NoError(t, b.Apply(
					Write{Key: HeadKey, Value: []byte("abc")},
					Write{Key: IndexKey, Value: []byte("[]")},
				))

				head, err := b.Get(HeadKey)
				require.NoError(t, err)
				assert.Equal(t, "abc", string(head))

				idx, err := b.Get(IndexKey)
				require.NoError(t, err)
				assert.Equal(t, "[]", string(idx))

				require.NoError(t, b.Apply(Write{Key: HeadKey, Value: []byte("def")}))
				head, err = b.Get(HeadKey)
				require.NoError(t, err)
				assert.Equal(t, "def", string(head))
			})

			t.Run("Keys by prefix", func(t *testing.T) {
				_, err := b.Create("objects/bb", []byte("x"))
				require.NoError(t, err)

				keys, err := b.Keys(ObjectPrefix)
				require.NoError(t, err)
				assert.Equal(t, []string{"objects/aa", "objects/bb"}, keys)
			})

			t.Run("invalid keys", func(t *testing.T) {
				_, err := b.Get("../etc/passwd")
				assert.Error(t, err)
				_, err = b.Create("", []byte("x"))
				assert.Error(t, err)
				assert.Error(t, b.Apply(Write{Key: "/abs", Value: nil}))
			})
		})
	}
}

func TestFileBackend_Layout(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".dis")
	b, err := NewFileBackend(root, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	_, err = b.Create(ObjectKey("0123"), []byte("content"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "objects", "0123"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "objects"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")
}

func TestFileBackend_RecoversJournal(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".dis")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, HeadKey), []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, IndexKey), []byte(`[{"path":"a","hash":"b"}]`), 0644))

	// A journal left behind by a process that died after writing it.
	j := `{"id":"j1","writes":[{"key":"HEAD","value":"bmV3"},{"key":"index","value":"W10="}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, journalName), []byte(j), 0644))

	b, err := NewFileBackend(root, nil)
	require.NoError(t, err)

	head, err := b.Get(HeadKey)
	require.NoError(t, err)
	assert.Equal(t, "new", string(head))

	idx, err := b.Get(IndexKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(idx))

	_, err = os.Stat(filepath.Join(root, journalName))
	assert.True(t, os.IsNotExist(err))

	keys, err := b.Keys("")
	require.NoError(t, err)
	assert.Equal(t, []string{HeadKey, IndexKey}, keys)
}

func TestFileBackend_CorruptJournal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, journalName), []byte("{"), 0644))

	_, err := NewFileBackend(root, nil)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	for _, kind := range []string{"fs", "memory", "badger", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			b, err := Open(kind, filepath.Join(dir, kind), nil)
			require.NoError(t, err)
			assert.NoError(t, b.Close())
		})
	}

	_, err := Open("tape", dir, nil)
	assert.Error(t, err)
}
