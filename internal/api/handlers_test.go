package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dis/internal/commit"
	"dis/internal/object"
	"dis/internal/repository"
	"dis/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo   *repository.Repository
	server http.Handler
	root   commit.Entry
	second commit.Entry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	repo, _, err := repository.Init(storage.NewMemoryBackend(), repository.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	require.NoError(t, err)

	_, err = repo.Stage("demo.txt", []byte("a\nb\n"))
	require.NoError(t, err)
	root, err := repo.Commit("root")
	require.NoError(t, err)

	_, err = repo.Stage("demo.txt", []byte("a\nc\n"))
	require.NoError(t, err)
	second, err := repo.Commit("second")
	require.NoError(t, err)

	return &fixture{
		repo:   repo,
		server: NewHandler(repo, nil).Routes(),
		root:   root,
		second: second,
	}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHead(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/head")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, f.second.Digest.String(), body["head"])
}

func TestHistory(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantLen    int
	}{
		{name: "all", path: "/api/history", wantStatus: http.StatusOK, wantLen: 2},
		{name: "limited", path: "/api/history?limit=1", wantStatus: http.StatusOK, wantLen: 1},
		{name: "zero limit", path: "/api/history?limit=0", wantStatus: http.StatusBadRequest},
		{name: "bad limit", path: "/api/history?limit=ten", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.path)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var views []commitView
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
			require.Len(t, views, tt.wantLen)
			assert.Equal(t, f.second.Digest, views[0].Digest)
			assert.Equal(t, f.root.Digest, views[0].Parent)
		})
	}
}

func TestCommit(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/commits/"+f.second.Digest.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Message string `json:"message"`
		Parent  string `json:"parent"`
		Changes []struct {
			Path          string `json:"path"`
			Content       string `json:"content"`
			ParentContent string `json:"parentContent"`
			Introduced    bool   `json:"introduced"`
			Segments      []struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"segments"`
		} `json:"changes"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	assert.Equal(t, "second", body.Message)
	assert.Equal(t, f.root.Digest.String(), body.Parent)
	require.Len(t, body.Changes, 1)
	change := body.Changes[0]
	assert.Equal(t, "demo.txt", change.Path)
	assert.Equal(t, "a\nc\n", change.Content)
	assert.Equal(t, "a\nb\n", change.ParentContent)
	assert.False(t, change.Introduced)
	require.Len(t, change.Segments, 3)
	assert.Equal(t, "removed", change.Segments[1].Type)
	assert.Equal(t, "b\n", change.Segments[1].Value)

	t.Run("root commit", func(t *testing.T) {
		rec := f.get(t, "/api/commits/"+f.root.Digest.String())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"introduced":true`)
		assert.NotContains(t, rec.Body.String(), `"segments"`)
	})

	t.Run("unknown commit", func(t *testing.T) {
		rec := f.get(t, "/api/commits/"+object.SHA1([]byte("nope")).String())
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "COMMIT_NOT_FOUND")
	})
}

func TestObject(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/api/objects/"+object.SHA1([]byte("a\nb\n")).String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a\nb\n", rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))

	rec = f.get(t, "/api/objects/"+object.SHA1([]byte("missing")).String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "OBJECT_NOT_FOUND")
}

func TestCompressedResponse(t *testing.T) {
	f := newFixture(t)
	big := bytes.Repeat([]byte("compressible line\n"), 500)
	_, err := f.repo.Stage("big.txt", big)
	require.NoError(t, err)
	c, err := f.repo.Commit("big")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/commits/"+c.Digest.String(), nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	compressed := rec.Body.Len()
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Less(t, compressed, len(body))
	assert.Contains(t, string(body), `"message":"big"`)
}

func TestReadOnly(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/head", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
