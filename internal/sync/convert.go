package sync

import (
	"time"

	"github.com/kanbo-dev/kanbo/internal/jira"
	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
)

// jiraUpdatedLayout is the timestamp format the remote uses for the
// "updated" field.
const jiraUpdatedLayout = "2006-01-02T15:04:05.000-0700"

// converter turns fetched issues into task records, stamping every record
// with the run's epoch and collecting labels the normalizer couldn't place.
type converter struct {
	normalizer       *status.Normalizer
	epoch            int64
	storyPointsField string
	dueDateField     string

	unmappedSeen map[string]bool
	unmapped     []string
}

func newConverter(normalizer *status.Normalizer, epoch int64, storyPointsField, dueDateField string) *converter {
	return &converter{
		normalizer:       normalizer,
		epoch:            epoch,
		storyPointsField: storyPointsField,
		dueDateField:     dueDateField,
		unmappedSeen:     make(map[string]bool),
	}
}

func (c *converter) convertAll(issues []jira.Issue) []*schema.Task {
	tasks := make([]*schema.Task, 0, len(issues))
	for i := range issues {
		tasks = append(tasks, c.convert(&issues[i]))
	}
	return tasks
}

func (c *converter) convert(issue *jira.Issue) *schema.Task {
	label := issue.Fields.Status.Name
	column, matched := c.normalizer.Normalize(label)
	if !matched && label != "" && !c.unmappedSeen[label] {
		c.unmappedSeen[label] = true
		c.unmapped = append(c.unmapped, label)
	}

	task := &schema.Task{
		Key:       issue.Key,
		Summary:   issue.Fields.Summary,
		RawStatus: label,
		Column:    column,
		SyncEpoch: c.epoch,
		Origin:    schema.OriginRemote,
		Raw:       issue.Raw,
	}

	if issue.Fields.Sprint != nil {
		task.SprintName = issue.Fields.Sprint.Name
		task.SprintState = issue.Fields.Sprint.State
	}

	if issue.Fields.Assignee != nil {
		task.Assignee = issue.Fields.Assignee.DisplayName
		task.AvatarURL = issue.Fields.Assignee.AvatarURL()
	}

	if issue.Fields.Priority != nil {
		task.Priority = issue.Fields.Priority.Name
	}

	task.DueAt = c.dueDate(issue)

	if points, ok := issue.CustomNumber(c.storyPointsField); ok {
		task.StoryPoints = &points
	}

	if issue.Fields.Updated != "" {
		if t, err := time.Parse(jiraUpdatedLayout, issue.Fields.Updated); err == nil {
			task.RemoteUpdated = &t
		}
	}

	return task
}

// dueDate prefers the deployment-specific planned-due-date field over the
// standard duedate field.
func (c *converter) dueDate(issue *jira.Issue) *time.Time {
	if c.dueDateField != "" {
		if raw, ok := issue.CustomString(c.dueDateField); ok {
			if t := parseDate(raw); t != nil {
				return t
			}
		}
	}
	return parseDate(issue.Fields.DueDate)
}

// parseDate accepts the date-only and RFC3339 forms the remote emits.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, jiraUpdatedLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
