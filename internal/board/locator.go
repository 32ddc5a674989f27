// Package board implements the remote-fetch side of the sync pipeline:
// board resolution, sprint resolution, and paginated issue fetching.
package board

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/kanbo-dev/kanbo/internal/jira"
)

// Client is the subset of the remote client the pipeline steps need.
// *jira.Client satisfies it; tests inject fakes.
type Client interface {
	Boards(ctx context.Context, projectKey string) ([]jira.Board, error)
	Sprints(ctx context.Context, boardID int, state string) ([]jira.Sprint, error)
	SprintIssues(ctx context.Context, sprintID int, jql string, fields []string, startAt, maxResults int) (*jira.SearchResult, error)
	BacklogIssues(ctx context.Context, boardID int, jql string, fields []string, startAt, maxResults int) (*jira.SearchResult, error)
}

// sprintStates is the resolution order for ResolveSprint. Strict: the
// first state with at least one sprint wins.
var sprintStates = []string{"active", "future", "closed"}

// Locator resolves the board and sprint for a project.
//
// Results are transient: each sync run re-resolves them, and the previous
// run's values are kept only as diagnostic metadata.
type Locator struct {
	client Client
	logger *log.Logger
}

// NewLocator creates a Locator. If logger is nil, a default logger
// writing to stderr is used.
func NewLocator(client Client, logger *log.Logger) *Locator {
	if logger == nil {
		logger = log.New(os.Stderr, "[board] ", log.LstdFlags)
	}
	return &Locator{client: client, logger: logger}
}

// ResolveBoard finds the board for a project.
//
// Selection policy: prefer a board of type "scrum"; otherwise take the
// first board returned. A project with zero boards is ErrNotFound.
func (l *Locator) ResolveBoard(ctx context.Context, projectKey string) (*jira.Board, error) {
	boards, err := l.client.Boards(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve board for %s: %w", projectKey, err)
	}

	if len(boards) == 0 {
		return nil, fmt.Errorf("%w: project %s has no boards", jira.ErrNotFound, projectKey)
	}

	for i := range boards {
		if boards[i].Type == "scrum" {
			l.logger.Printf("Resolved board %d (%s, scrum) for project %s", boards[i].ID, boards[i].Name, projectKey)
			return &boards[i], nil
		}
	}

	l.logger.Printf("No scrum board for project %s, using %d (%s, %s)",
		projectKey, boards[0].ID, boards[0].Name, boards[0].Type)
	return &boards[0], nil
}

// ResolveSprint finds the sprint to mirror for a board.
//
// States are tried in strict order: active, then future, then closed,
// stopping at the first state with at least one sprint and selecting that
// state's first sprint. A board with no sprint in any state returns
// jira.ErrNoSprint; callers treat it as a soft condition and continue
// with an empty sprint-issue set.
func (l *Locator) ResolveSprint(ctx context.Context, boardID int) (*jira.Sprint, error) {
	for _, state := range sprintStates {
		sprints, err := l.client.Sprints(ctx, boardID, state)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sprint for board %d: %w", boardID, err)
		}
		if len(sprints) > 0 {
			l.logger.Printf("Resolved sprint %d (%s, %s) for board %d",
				sprints[0].ID, sprints[0].Name, sprints[0].State, boardID)
			return &sprints[0], nil
		}
	}

	l.logger.Printf("Board %d has no sprint in any state", boardID)
	return nil, fmt.Errorf("%w: board %d", jira.ErrNoSprint, boardID)
}
