// Package api serves a read-only JSON view of a repository.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"dis/internal/commit"
	"dis/internal/diff"
	derr "dis/internal/errors"
	"dis/internal/index"
	"dis/internal/logging"
	"dis/internal/middleware"
	"dis/internal/object"
	"dis/internal/repository"
	"dis/internal/validation"

	"go.uber.org/zap"
)

// Repository is what the handlers read from.
type Repository interface {
	Head() (object.Digest, error)
	History(limit int) ([]commit.Entry, error)
	GetCommit(d object.Digest) (*commit.Commit, error)
	Show(d object.Digest) ([]repository.FileChange, error)
	Object(d object.Digest) ([]byte, error)
}

type Handler struct {
	repo   Repository
	logger *logging.Logger
}

func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Routes returns the full handler with middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/head", h.Head)
	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("GET /api/commits/{digest}", h.Commit)
	mux.HandleFunc("GET /api/objects/{digest}", h.Object)

	return middleware.Chain(
		mux,
		middleware.Compress,
		middleware.Recover(h.logger),
		middleware.Logger(h.logger),
		middleware.RequestID,
	)
}

type commitView struct {
	Digest    object.Digest `json:"digest"`
	Timestamp string        `json:"timeStamp"`
	Message   string        `json:"message"`
	Parent    object.Digest `json:"parent"`
	Files     []index.Entry `json:"files"`
}

func newCommitView(d object.Digest, c *commit.Commit) commitView {
	return commitView{
		Digest:    d,
		Timestamp: c.Timestamp,
		Message:   c.Message,
		Parent:    c.Parent,
		Files:     c.Files,
	}
}

type fileChangeView struct {
	Path          string         `json:"path"`
	Digest        object.Digest  `json:"digest"`
	Content       string         `json:"content"`
	ParentDigest  object.Digest  `json:"parentDigest,omitempty"`
	ParentContent *string        `json:"parentContent,omitempty"`
	Introduced    bool           `json:"introduced"`
	Segments      []diff.Segment `json:"segments,omitempty"`
	Stats         diff.Stats     `json:"stats"`
}

type showView struct {
	commitView
	Changes []fileChangeView `json:"changes"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Head(w http.ResponseWriter, r *http.Request) {
	head, err := h.repo.Head()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"head": head.String()})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := validation.HistoryLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, err := h.repo.History(limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]commitView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newCommitView(e.Digest, e.Commit))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	raw, err := validation.PathDigest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d := object.Digest(raw)

	changes, err := h.repo.Show(d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.repo.GetCommit(d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view := showView{
		commitView: newCommitView(d, c),
		Changes:    make([]fileChangeView, 0, len(changes)),
	}
	for _, fc := range changes {
		fv := fileChangeView{
			Path:       fc.Path,
			Digest:     fc.Digest,
			Content:    string(fc.Content),
			Introduced: fc.Introduced,
			Segments:   fc.Segments,
			Stats:      fc.Stats,
		}
		if !fc.Introduced {
			parent := string(fc.ParentContent)
			fv.ParentDigest = fc.ParentDigest
			fv.ParentContent = &parent
		}
		view.Changes = append(view.Changes, fv)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Object(w http.ResponseWriter, r *http.Request) {
	raw, err := validation.PathDigest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	content, err := h.repo.Object(object.Digest(raw))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(content)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := derr.CodeOf(err)
	if code >= http.StatusInternalServerError {
		h.logger.WithRequestID(r.Context()).Error("request failed", zap.Error(err))
	}

	var e *derr.Error
	if errors.As(err, &e) {
		writeJSON(w, code, map[string]any{
			"type":    e.Type,
			"message": e.Error(),
		})
		return
	}
	writeJSON(w, code, map[string]any{"message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
