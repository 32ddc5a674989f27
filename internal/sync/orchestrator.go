package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/kanbo-dev/kanbo/internal/board"
	"github.com/kanbo-dev/kanbo/internal/jira"
	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
)

// RemoteClient is the remote surface the orchestrator needs: the pipeline
// endpoints plus plain search for the fallback path. *jira.Client
// satisfies it; tests inject fakes.
type RemoteClient interface {
	board.Client
	Search(ctx context.Context, jql string, fields []string, startAt, maxResults int) (*jira.SearchResult, error)
}

// Config holds the orchestrator's run settings.
type Config struct {
	// ProjectKey scopes board resolution and the backlog fetch.
	ProjectKey string

	// Assignee is the current-user identity used to filter fetches.
	// Empty means fetch unfiltered; the fallback path then uses the
	// remote's own notion of the current user.
	Assignee string

	// StoryPointsField and DueDateField are the deployment-specific
	// custom field ids (configured, never hard-coded).
	StoryPointsField string
	DueDateField     string

	// PageSize overrides the fetch page size when > 0.
	PageSize int

	// Logger for run activity (default: stderr logger).
	Logger *log.Logger
}

// orchestrator implements the Orchestrator interface.
type orchestrator struct {
	client     RemoteClient
	db         *store.DB
	normalizer *status.Normalizer
	cfg        Config
	logger     *log.Logger

	locator *board.Locator
	fetcher *board.Fetcher
}

// New creates an Orchestrator.
//
// The store must be open with its schema initialized. Collaborators are
// passed explicitly; the orchestrator holds no ambient state.
//
// Example:
//
//	db, err := store.Open(".kanbo/board.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	normalizer := status.NewNormalizer(status.DefaultMapping(), overrides)
//	orchestrator, err := sync.New(client, db, normalizer, sync.Config{ProjectKey: "PROJ"})
func New(client RemoteClient, db *store.DB, normalizer *status.Normalizer, cfg Config) (Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer cannot be nil")
	}
	if cfg.ProjectKey == "" {
		return nil, fmt.Errorf("%w: project key is required", jira.ErrNotConfigured)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	fetcher := board.NewFetcher(client, cfg.Logger)
	fetcher.Assignee = cfg.Assignee
	fetcher.StoryPointsField = cfg.StoryPointsField
	fetcher.DueDateField = cfg.DueDateField
	fetcher.PageSize = cfg.PageSize

	return &orchestrator{
		client:     client,
		db:         db,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     cfg.Logger,
		locator:    board.NewLocator(client, cfg.Logger),
		fetcher:    fetcher,
	}, nil
}

// Run implements Orchestrator.Run.
func (o *orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	// One epoch per run, stamped on every record written. The prune step
	// relies on this: any remote-origin record not refreshed under this
	// epoch is stale by definition.
	epoch := start.UnixMilli()
	conv := newConverter(o.normalizer, epoch, o.cfg.StoryPointsField, o.cfg.DueDateField)

	result := &Result{Epoch: epoch, Method: MethodPipeline}

	// Step 1: board resolution. Hard failure: fall back to the simple
	// filtered query, an independent recovery path under the same epoch.
	brd, err := o.locator.ResolveBoard(ctx, o.cfg.ProjectKey)
	if err != nil {
		o.logger.Printf("Board resolution failed (%v), falling back to filtered query", err)
		return o.runFallback(ctx, conv, result, start)
	}
	result.BoardID = brd.ID
	result.BoardName = brd.Name

	// Step 2: sprint resolution. Soft: no sprint means an empty
	// sprint-issue set, not an aborted run. A board with zero sprints is
	// a legitimate state, not a degradation.
	sprint, err := o.locator.ResolveSprint(ctx, brd.ID)
	if err != nil {
		if errors.Is(err, jira.ErrNoSprint) {
			o.logger.Printf("No sprint to mirror: %v", err)
		} else {
			o.logger.Printf("WARNING: sprint resolution degraded: %v", err)
			result.Degraded = append(result.Degraded, "sprint resolution")
		}
		sprint = nil
	}

	// Step 3: sprint issues. Fetch errors degrade to an empty list.
	var sprintIssues []jira.Issue
	if sprint != nil {
		result.SprintID = sprint.ID
		result.SprintName = sprint.Name
		result.SprintState = sprint.State

		sprintIssues, err = o.fetcher.FetchSprintIssues(ctx, sprint.ID)
		if err != nil {
			o.logger.Printf("WARNING: sprint issue fetch degraded: %v", err)
			result.Degraded = append(result.Degraded, "sprint issues")
			sprintIssues = nil
		}
	}
	result.SprintIssues = len(sprintIssues)

	// Step 4: backlog issues. Same degradation policy.
	backlogIssues, err := o.fetcher.FetchBacklogIssues(ctx, brd.ID, o.cfg.ProjectKey)
	if err != nil {
		o.logger.Printf("WARNING: backlog fetch degraded: %v", err)
		result.Degraded = append(result.Degraded, "backlog issues")
		backlogIssues = nil
	}
	result.BacklogIssues = len(backlogIssues)

	// Sprint records must win the merge: the sprint issue carries the
	// sprint association the backlog copy lacks.
	sprintTasks := conv.convertAll(sprintIssues)
	backlogTasks := conv.convertAll(backlogIssues)
	merged := Merge(backlogTasks, sprintTasks)
	result.Merged = len(merged)
	result.Unmapped = conv.unmapped

	o.persist(ctx, merged, result)

	if err := o.pruneAndRecord(ctx, result, sprint, brd.ID, brd.Name); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	o.logger.Printf("Sync complete: method=%s merged=%d upserted=%d pruned=%d degraded=%d (%v)",
		result.Method, result.Merged, result.Upserted, result.Pruned, len(result.Degraded), result.Duration.Round(time.Millisecond))
	return result, nil
}

// runFallback is the recovery path for a failed board resolution: one
// simple filtered query, then the same upsert-then-prune cycle under the
// run's epoch.
func (o *orchestrator) runFallback(ctx context.Context, conv *converter, result *Result, start time.Time) (*Result, error) {
	result.Method = MethodFallback

	jql := `assignee = currentUser()`
	if o.cfg.Assignee != "" {
		jql = fmt.Sprintf("assignee = %q", o.cfg.Assignee)
	}

	issues, err := o.searchAll(ctx, jql)
	if err != nil {
		return nil, fmt.Errorf("fallback query failed: %w", err)
	}
	result.BacklogIssues = len(issues)

	merged := Merge(conv.convertAll(issues), nil)
	result.Merged = len(merged)
	result.Unmapped = conv.unmapped

	o.persist(ctx, merged, result)

	if err := o.pruneAndRecord(ctx, result, nil, 0, ""); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	o.logger.Printf("Fallback sync complete: merged=%d upserted=%d pruned=%d (%v)",
		result.Merged, result.Upserted, result.Pruned, result.Duration.Round(time.Millisecond))
	return result, nil
}

// searchAll pages through a plain search the same way the fetcher pages
// through the agile listings.
func (o *orchestrator) searchAll(ctx context.Context, jql string) ([]jira.Issue, error) {
	size := o.cfg.PageSize
	if size <= 0 {
		size = board.DefaultPageSize
	}

	fields := append([]string{}, board.DefaultFields...)
	if o.cfg.StoryPointsField != "" {
		fields = append(fields, o.cfg.StoryPointsField)
	}
	if o.cfg.DueDateField != "" {
		fields = append(fields, o.cfg.DueDateField)
	}

	var issues []jira.Issue
	total := -1
	for {
		page, err := o.client.Search(ctx, jql, fields, len(issues), size)
		if err != nil {
			return nil, err
		}
		if total < 0 {
			total = page.Total
		}
		issues = append(issues, page.Issues...)
		if len(issues) >= total || len(page.Issues) == 0 {
			return issues, nil
		}
	}
}

// persist upserts the merged set. Per-item failures are warnings, not run
// failures: the rest of the set still lands. A failed item was still
// fetched this run, so the remote owns it; its previous row is touched
// onto the run epoch so the prune keeps it stale-but-present instead of
// deleting live data.
func (o *orchestrator) persist(ctx context.Context, tasks []*schema.Task, result *Result) {
	for _, task := range tasks {
		if err := o.db.UpsertTaskContext(ctx, task); err != nil {
			o.logger.Printf("WARNING: failed to upsert %s: %v", task.Key, err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("upsert %s: %v", task.Key, err))
			result.Failed++
			if err := o.db.TouchTask(ctx, task.Key, result.Epoch); err != nil {
				o.logger.Printf("WARNING: failed to retain %s: %v", task.Key, err)
				result.Warnings = append(result.Warnings, fmt.Sprintf("retain %s: %v", task.Key, err))
			}
			continue
		}
		result.Upserted++
	}
}

// pruneAndRecord runs the prune step and writes the run's diagnostic
// metadata. Prune runs strictly after persist and even when the merged
// set was empty: a legitimate zero-issue run retires every previously
// known remote-origin record.
func (o *orchestrator) pruneAndRecord(ctx context.Context, result *Result, sprint *jira.Sprint, boardID int, boardName string) error {
	pruned, err := o.db.DeleteStaleRemote(ctx, result.Epoch)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	result.Pruned = pruned

	meta := map[string]string{
		store.MetaLastSyncEpoch:  strconv.FormatInt(result.Epoch, 10),
		store.MetaLastSyncMethod: result.Method,
		store.MetaBoardID:        strconv.Itoa(boardID),
		store.MetaBoardName:      boardName,
	}
	if sprint != nil {
		meta[store.MetaSprintID] = strconv.Itoa(sprint.ID)
		meta[store.MetaSprintName] = sprint.Name
		meta[store.MetaSprintState] = sprint.State
	} else {
		meta[store.MetaSprintID] = ""
		meta[store.MetaSprintName] = ""
		meta[store.MetaSprintState] = ""
	}
	if unmapped, err := json.Marshal(result.Unmapped); err == nil {
		meta[store.MetaUnmappedLabels] = string(unmapped)
	}

	for key, value := range meta {
		if err := o.db.SetMeta(ctx, key, value); err != nil {
			o.logger.Printf("WARNING: failed to record %s: %v", key, err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("meta %s: %v", key, err))
		}
	}

	return nil
}
