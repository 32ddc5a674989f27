// Package report generates sprint summaries from the board mirror.
//
// The report is produced by an LLM: the current board state is rendered
// into a deterministic text prompt, sent to the Anthropic Messages API,
// and the model's answer is returned verbatim for display or export.
package report

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
)

const systemPrompt = `You are a concise engineering status reporter. You are given a
kanban board snapshot: tasks grouped by column, with assignees, story points, and
due dates where known. Write a short sprint status report in plain prose:
what is done, what is in flight, what has not started, and anything at risk
(overdue or unassigned work). Do not invent tasks that are not in the snapshot.`

const maxReportTokens = 1024

// completer abstracts the model call so reports can be tested offline.
type completer func(ctx context.Context, system, prompt string) (string, error)

// Generator produces sprint reports from the mirror
type Generator struct {
	db       *store.DB
	model    anthropic.Model
	complete completer
}

// NewGenerator creates a report generator. The API key is read from
// ANTHROPIC_API_KEY; model comes from configuration (report_model).
func NewGenerator(db *store.DB, model string) (*Generator, error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	client := anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	g := &Generator{
		db:    db,
		model: anthropic.Model(model),
	}
	g.complete = func(ctx context.Context, system, prompt string) (string, error) {
		msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     g.model,
			MaxTokens: maxReportTokens,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("messages API call failed: %w", err)
		}

		var sb strings.Builder
		for _, block := range msg.Content {
			sb.WriteString(block.Text)
		}
		return sb.String(), nil
	}
	return g, nil
}

// Generate reads the mirror and returns the model's sprint report
func (g *Generator) Generate(ctx context.Context) (string, error) {
	tasks, err := g.db.ListTasksContext(ctx, store.ListTasksFilter{})
	if err != nil {
		return "", fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "", fmt.Errorf("board is empty, nothing to report")
	}

	sprint, _ := g.db.GetMeta(ctx, store.MetaSprintName)

	report, err := g.complete(ctx, systemPrompt, BuildPrompt(tasks, sprint))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(report) == "" {
		return "", fmt.Errorf("model returned an empty report")
	}
	return report, nil
}

// BuildPrompt renders the board snapshot as a deterministic text prompt,
// grouped by column in display order.
func BuildPrompt(tasks []*schema.Task, sprintName string) string {
	byColumn := make(map[status.Column][]*schema.Task)
	for _, t := range tasks {
		byColumn[t.Column] = append(byColumn[t.Column], t)
	}

	var sb strings.Builder
	if sprintName != "" {
		fmt.Fprintf(&sb, "Sprint: %s\n", sprintName)
	}
	fmt.Fprintf(&sb, "Total tasks: %d\n", len(tasks))

	for _, col := range status.Columns() {
		group := byColumn[col]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Key < group[j].Key })

		fmt.Fprintf(&sb, "\n%s (%d):\n", col, len(group))
		for _, t := range group {
			fmt.Fprintf(&sb, "- %s: %s", t.Key, t.Summary)
			if t.Assignee != "" {
				fmt.Fprintf(&sb, " [assignee: %s]", t.Assignee)
			}
			if t.StoryPoints != nil {
				fmt.Fprintf(&sb, " [points: %g]", *t.StoryPoints)
			}
			if t.DueAt != nil {
				fmt.Fprintf(&sb, " [due: %s]", t.DueAt.Format("2006-01-02"))
			}
			if t.Origin == schema.OriginLocal {
				sb.WriteString(" [local]")
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
