// Package client talks to the JSON view served by "dis serve".
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dis/internal/diff"
	derr "dis/internal/errors"
	"dis/internal/index"
	"dis/internal/object"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

type CommitInfo struct {
	Digest    object.Digest `json:"digest"`
	Timestamp string        `json:"timeStamp"`
	Message   string        `json:"message"`
	Parent    object.Digest `json:"parent"`
	Files     []index.Entry `json:"files"`
}

type FileChange struct {
	Path          string         `json:"path"`
	Digest        object.Digest  `json:"digest"`
	Content       string         `json:"content"`
	ParentDigest  object.Digest  `json:"parentDigest"`
	ParentContent string         `json:"parentContent"`
	Introduced    bool           `json:"introduced"`
	Segments      []diff.Segment `json:"segments"`
	Stats         diff.Stats     `json:"stats"`
}

type Show struct {
	CommitInfo
	Changes []FileChange `json:"changes"`
}

// Head returns the latest commit digest, or "" for an empty repository.
func (c *Client) Head(ctx context.Context) (object.Digest, error) {
	var body struct {
		Head object.Digest `json:"head"`
	}
	if err := c.getJSON(ctx, "/api/head", &body); err != nil {
		return "", err
	}
	return body.Head, nil
}

// History lists commits newest first. A limit of zero uses the server's
// maximum.
func (c *Client) History(ctx context.Context, limit int) ([]CommitInfo, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var commits []CommitInfo
	if err := c.getJSON(ctx, path, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *Client) Commit(ctx context.Context, d object.Digest) (*Show, error) {
	var show Show
	if err := c.getJSON(ctx, "/api/commits/"+url.PathEscape(d.String()), &show); err != nil {
		return nil, err
	}
	return &show, nil
}

// Object returns raw object content.
func (c *Client) Object(ctx context.Context, d object.Digest) ([]byte, error) {
	resp, err := c.get(ctx, "/api/objects/"+url.PathEscape(d.String()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// get performs a GET and turns error responses into *errors.Error values
// so callers can match them with errors.Is.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	var body struct {
		Type    derr.ErrorType `json:"type"`
		Message string         `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Type == "" {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil, &derr.Error{Type: body.Type, Message: body.Message, Code: resp.StatusCode}
}
