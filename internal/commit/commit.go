// Package commit holds commit records, their codec and the graph that links
// them through parent digests.
package commit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	derr "dis/internal/errors"
	"dis/internal/index"
	"dis/internal/object"
)

// TimeLayout is the ISO-8601 form commits are stamped with.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Commit is a snapshot of the staging index. Parent is empty for the root
// commit.
type Commit struct {
	Timestamp string        `json:"timeStamp"`
	Message   string        `json:"message"`
	Files     []index.Entry `json:"files"`
	Parent    object.Digest `json:"parent"`
}

func (c *Commit) HasParent() bool {
	return c.Parent != ""
}

// Time parses the commit timestamp.
func (c *Commit) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, c.Timestamp)
}

// Encode serializes c with a fixed key order so equal commits hash equally.
func Encode(c *Commit) ([]byte, error) {
	files := c.Files
	if files == nil {
		files = []index.Entry{}
	}
	data, err := json.Marshal(&Commit{
		Timestamp: c.Timestamp,
		Message:   c.Message,
		Files:     files,
		Parent:    c.Parent,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding commit: %w", err)
	}
	return data, nil
}

// wireCommit distinguishes missing keys from zero values.
type wireCommit struct {
	Timestamp *string        `json:"timeStamp"`
	Message   *string        `json:"message"`
	Files     *[]index.Entry `json:"files"`
	Parent    *object.Digest `json:"parent"`
}

// Decode parses the object stored under digest as a commit. Bytes that are
// not a well-formed commit yield CorruptCommit.
func Decode(digest object.Digest, data []byte) (*Commit, error) {
	corrupt := func(format string, args ...any) error {
		return derr.CorruptCommit(string(digest), fmt.Errorf(format, args...))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, corrupt("expected a JSON object")
	}

	var w wireCommit
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, derr.CorruptCommit(string(digest), err)
	}

	if w.Timestamp == nil || *w.Timestamp == "" {
		return nil, corrupt("timeStamp is required")
	}
	if _, err := time.Parse(time.RFC3339Nano, *w.Timestamp); err != nil {
		return nil, corrupt("timeStamp: %v", err)
	}
	if w.Message == nil {
		return nil, corrupt("message is required")
	}
	if w.Files == nil || *w.Files == nil {
		return nil, corrupt("files must be an array")
	}
	for i, f := range *w.Files {
		if f.Path == "" || f.Digest == "" {
			return nil, corrupt("files[%d]: path and hash are required", i)
		}
	}

	c := &Commit{
		Timestamp: *w.Timestamp,
		Message:   *w.Message,
		Files:     *w.Files,
	}
	if w.Parent != nil {
		c.Parent = *w.Parent
	}
	return c, nil
}
