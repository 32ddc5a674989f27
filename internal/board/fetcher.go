package board

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/kanbo-dev/kanbo/internal/jira"
)

// DefaultPageSize is the fixed page size for issue listings.
const DefaultPageSize = 50

// DefaultFields is the field selection requested on every issue fetch.
// Deployment-specific custom fields aren't listed here; StoryPointsField
// and DueDateField on the Fetcher extend the selection per deployment.
var DefaultFields = []string{
	"summary", "status", "issuetype", "assignee", "priority",
	"duedate", "updated", "parent", "issuelinks", "sprint", "closedSprint",
}

// Fetcher retrieves sprint and backlog issues page by page.
type Fetcher struct {
	client Client
	logger *log.Logger

	// Assignee is the configured current-user identity. When set, both
	// fetches filter to that assignee; empty means fetch unfiltered.
	Assignee string

	// StoryPointsField and DueDateField are deployment-specific custom
	// field ids added to the field selection when configured.
	StoryPointsField string
	DueDateField     string

	// PageSize overrides DefaultPageSize when > 0.
	PageSize int
}

// NewFetcher creates a Fetcher. If logger is nil, a default logger
// writing to stderr is used.
func NewFetcher(client Client, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(os.Stderr, "[fetch] ", log.LstdFlags)
	}
	return &Fetcher{client: client, logger: logger}
}

func (f *Fetcher) pageSize() int {
	if f.PageSize > 0 {
		return f.PageSize
	}
	return DefaultPageSize
}

func (f *Fetcher) fields() []string {
	fields := make([]string, len(DefaultFields), len(DefaultFields)+2)
	copy(fields, DefaultFields)
	if f.StoryPointsField != "" {
		fields = append(fields, f.StoryPointsField)
	}
	if f.DueDateField != "" {
		fields = append(fields, f.DueDateField)
	}
	return fields
}

func (f *Fetcher) assigneeJQL() string {
	if f.Assignee == "" {
		return ""
	}
	return fmt.Sprintf("assignee = %q", f.Assignee)
}

// FetchSprintIssues retrieves all issues of one sprint, filtered to the
// configured assignee when one is set.
func (f *Fetcher) FetchSprintIssues(ctx context.Context, sprintID int) ([]jira.Issue, error) {
	jql := f.assigneeJQL()

	issues, err := f.paginate(ctx, func(startAt, max int) (*searchPage, error) {
		result, err := f.client.SprintIssues(ctx, sprintID, jql, f.fields(), startAt, max)
		if err != nil {
			return nil, err
		}
		return &searchPage{Issues: result.Issues, Total: result.Total}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sprint %d issues: %w", sprintID, err)
	}

	f.logger.Printf("Fetched %d sprint issues (sprint %d)", len(issues), sprintID)
	return issues, nil
}

// FetchBacklogIssues retrieves a board's backlog, restricted to the given
// project and to the configured assignee when one is set.
//
// Issues that carry a live or closed sprint association are excluded,
// whatever their status: a sprint item showing up in a backlog listing is
// upstream inconsistency, and letting it through would double-place it.
func (f *Fetcher) FetchBacklogIssues(ctx context.Context, boardID int, projectKey string) ([]jira.Issue, error) {
	jql := fmt.Sprintf("project = %q", projectKey)
	if assignee := f.assigneeJQL(); assignee != "" {
		jql += " AND " + assignee
	}

	issues, err := f.paginate(ctx, func(startAt, max int) (*searchPage, error) {
		result, err := f.client.BacklogIssues(ctx, boardID, jql, f.fields(), startAt, max)
		if err != nil {
			return nil, err
		}
		return &searchPage{Issues: result.Issues, Total: result.Total}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch backlog for board %d: %w", boardID, err)
	}

	filtered := issues[:0]
	dropped := 0
	for _, issue := range issues {
		if issue.InSprint() {
			dropped++
			continue
		}
		filtered = append(filtered, issue)
	}
	if dropped > 0 {
		f.logger.Printf("Dropped %d backlog issues carrying sprint associations (board %d)", dropped, boardID)
	}

	f.logger.Printf("Fetched %d backlog issues (board %d)", len(filtered), boardID)
	return filtered, nil
}

type searchPage struct {
	Issues []jira.Issue
	Total  int
}

// paginate accumulates fixed-size pages until the total reported by the
// first response is reached. A page returning fewer items than requested
// does NOT terminate the loop: servers legitimately short-page before the
// end, and only the running total is authoritative. An empty page does
// terminate it, as a guard against a remote that never converges.
func (f *Fetcher) paginate(ctx context.Context, fetch func(startAt, max int) (*searchPage, error)) ([]jira.Issue, error) {
	size := f.pageSize()

	var issues []jira.Issue
	total := -1

	for {
		page, err := fetch(len(issues), size)
		if err != nil {
			return nil, err
		}

		if total < 0 {
			total = page.Total
		}

		issues = append(issues, page.Issues...)

		if len(issues) >= total {
			return issues, nil
		}
		if len(page.Issues) == 0 {
			f.logger.Printf("WARNING: remote reported total=%d but stopped issuing items at %d", total, len(issues))
			return issues, nil
		}
	}
}
