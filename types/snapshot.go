package types

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is the immutable metadata record written once per commit.
// Serialized as a JSON document under refs/heads/<branch>/snapshots/<id>.json.
// Loaders tolerate unknown fields so later versions can extend the format.
type Snapshot struct {
	ID          string `json:"id"`
	// Parent is the id of the prior snapshot on the same branch, or nil
	// (serialized as explicit null) for the initial snapshot.
	Parent      *string `json:"parent"`
	Description string  `json:"description"`
	Timestamp   UTCTime `json:"timestamp"`
	// IndexHash is the 64-char lowercase hex of the index object digest.
	IndexHash string `json:"index_hash"`

	// Version-control context, present only when the external tool
	// provided it at commit time.
	GitBranch string   `json:"git_branch,omitempty"`
	GitCommit string   `json:"git_commit,omitempty"`
	GitDirty  *bool    `json:"git_dirty,omitempty"`
	GitStatus []string `json:"git_status,omitempty"`
}

// ParentID returns the parent id or "" for the initial snapshot.
func (s *Snapshot) ParentID() string {
	if s.Parent == nil {
		return ""
	}
	return *s.Parent
}

// ShortID returns the first 8 characters of the id for display.
func (s *Snapshot) ShortID() string {
	if len(s.ID) <= 8 {
		return s.ID
	}
	return s.ID[:8]
}

const utcTimeLayout = "2006-01-02T15:04:05Z"

// UTCTime marshals as ISO-8601 UTC with seconds resolution and a trailing Z.
type UTCTime struct {
	time.Time
}

// Now returns the current time truncated to seconds.
func Now() UTCTime {
	return UTCTime{time.Now().UTC().Truncate(time.Second)}
}

func (t UTCTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(utcTimeLayout) + `"`), nil
}

func (t *UTCTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	parsed, err := time.Parse(utcTimeLayout, s)
	if err != nil {
		// Accept full RFC 3339 from older writers.
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}
