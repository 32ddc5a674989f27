// Package schema provides the durable record types for the local board mirror.
package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kanbo-dev/kanbo/internal/status"
)

// Origin tags who authored a record. Remote-origin records are owned by the
// sync pipeline; local-origin records are user-authored and the pipeline
// never writes or removes them.
const (
	OriginRemote = "remote"
	OriginLocal  = "local"
)

// Task is one board card as stored locally.
//
// At most one Task exists per Key. Remote-origin tasks are upserted on
// every sync run and stamped with that run's epoch; a remote-origin task
// whose epoch falls behind the current run's is pruned. Local-origin
// tasks are created by user action only and are exempt from pruning.
type Task struct {
	// ===== Identity =====
	Key string `json:"key"`

	// ===== Content =====
	Summary   string        `json:"summary"`
	RawStatus string        `json:"raw_status"`
	Column    status.Column `json:"column"`

	// ===== Sprint association =====
	SprintName  string `json:"sprint_name,omitempty"`
	SprintState string `json:"sprint_state,omitempty"`

	// ===== Assignment =====
	Assignee  string `json:"assignee,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`

	// ===== Scheduling & sizing =====
	DueAt       *time.Time `json:"due_at,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	StoryPoints *float64   `json:"story_points,omitempty"`

	// ===== Sync bookkeeping =====
	RemoteUpdated *time.Time `json:"remote_updated,omitempty"`
	SyncEpoch     int64      `json:"sync_epoch"`
	Origin        string     `json:"origin"`

	// Raw is the remote fields payload as fetched, kept for later
	// inspection. Empty for local-origin tasks.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Validate checks the Task has valid field values.
func (t *Task) Validate() error {
	if t.Key == "" {
		return fmt.Errorf("key is required")
	}
	if t.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	if !t.Column.Valid() {
		return fmt.Errorf("column %q is not a board column", t.Column)
	}
	if t.Origin != OriginRemote && t.Origin != OriginLocal {
		return fmt.Errorf("origin must be %q or %q (got %q)", OriginRemote, OriginLocal, t.Origin)
	}
	if t.SyncEpoch <= 0 {
		return fmt.Errorf("sync_epoch is required")
	}
	return nil
}
