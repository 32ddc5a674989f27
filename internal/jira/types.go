package jira

import (
	"encoding/json"
)

// Identity is the authenticated user as reported by the remote tracker.
type Identity struct {
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Board is a remote agile board, scoped to a project.
type Board struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // scrum, kanban, simple
}

// Sprint is a time-boxed subset of a board's items.
type Sprint struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"` // active, future, closed
}

// User is an assignee reference on an issue.
type User struct {
	AccountID   string            `json:"accountId"`
	DisplayName string            `json:"displayName"`
	AvatarURLs  map[string]string `json:"avatarUrls"`
}

// AvatarURL returns the largest avatar reference, or "" if none.
func (u *User) AvatarURL() string {
	if u == nil {
		return ""
	}
	for _, size := range []string{"48x48", "32x32", "24x24", "16x16"} {
		if url, ok := u.AvatarURLs[size]; ok {
			return url
		}
	}
	return ""
}

// NamedField is the common {name} shape used by status, priority, and
// issue type fields.
type NamedField struct {
	Name string `json:"name"`
}

// ParentRef is a reference to a parent issue (epic or subtask parent).
type ParentRef struct {
	Key string `json:"key"`
}

// IssueLink is a reference to a linked issue.
type IssueLink struct {
	Type         NamedField `json:"type"`
	InwardIssue  *ParentRef `json:"inwardIssue,omitempty"`
	OutwardIssue *ParentRef `json:"outwardIssue,omitempty"`
}

// IssueFields holds the typed subset of an issue's fields the sync
// pipeline interprets. Deployment-specific custom fields (story points,
// planned due date) are read from Issue.Raw via the accessors below,
// because their field ids vary per remote deployment.
type IssueFields struct {
	Summary       string      `json:"summary"`
	Status        NamedField  `json:"status"`
	IssueType     NamedField  `json:"issuetype"`
	Assignee      *User       `json:"assignee"`
	Priority      *NamedField `json:"priority"`
	DueDate       string      `json:"duedate"`
	Updated       string      `json:"updated"`
	Parent        *ParentRef  `json:"parent"`
	IssueLinks    []IssueLink `json:"issuelinks"`
	Sprint        *Sprint     `json:"sprint"`
	ClosedSprints []Sprint    `json:"closedSprint"`
}

// Issue is an immutable snapshot of one remote work item at fetch time.
//
// Raw retains the full fields payload exactly as returned by the remote,
// so custom fields and anything the typed struct doesn't cover remain
// inspectable after the fact.
type Issue struct {
	Key    string
	Fields IssueFields
	Raw    json.RawMessage
}

// UnmarshalJSON decodes the wire shape {key, fields} while keeping the
// raw fields bytes alongside the typed view.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var wire struct {
		Key    string          `json:"key"`
		Fields json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	i.Key = wire.Key
	i.Raw = wire.Fields

	if len(wire.Fields) > 0 {
		if err := json.Unmarshal(wire.Fields, &i.Fields); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON re-emits the wire shape. Raw wins when present so a
// round-tripped issue keeps fields the typed struct doesn't model.
func (i Issue) MarshalJSON() ([]byte, error) {
	fields := i.Raw
	if len(fields) == 0 {
		b, err := json.Marshal(i.Fields)
		if err != nil {
			return nil, err
		}
		fields = b
	}
	return json.Marshal(struct {
		Key    string          `json:"key"`
		Fields json.RawMessage `json:"fields"`
	}{Key: i.Key, Fields: fields})
}

// CustomNumber reads a numeric custom field (e.g. story points) from the
// raw fields payload by its deployment-specific id.
func (i *Issue) CustomNumber(fieldID string) (float64, bool) {
	raw, ok := i.customField(fieldID)
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// CustomString reads a string custom field (e.g. planned due date) from
// the raw fields payload by its deployment-specific id.
func (i *Issue) CustomString(fieldID string) (string, bool) {
	raw, ok := i.customField(fieldID)
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

func (i *Issue) customField(fieldID string) (json.RawMessage, bool) {
	if fieldID == "" || len(i.Raw) == 0 {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(i.Raw, &fields); err != nil {
		return nil, false
	}
	raw, ok := fields[fieldID]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// InSprint reports whether the issue carries any live or closed sprint
// association. The backlog fetch uses this to drop issues a sprint still
// claims, independent of their status.
func (i *Issue) InSprint() bool {
	return i.Fields.Sprint != nil || len(i.Fields.ClosedSprints) > 0
}

// Transition is one workflow move available for an issue.
type Transition struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	To   NamedField `json:"to"`
}

// SearchResult is the offset/limit/total pagination envelope returned by
// search and by the agile issue listings.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}
