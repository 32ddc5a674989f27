package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/jira"
	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var moveCmd = &cobra.Command{
	Use:     "move <key> <status>",
	GroupID: "board",
	Short:   "Move a task to another status",
	Long: `Move a task by applying a workflow transition on the remote tracker.

The status argument is matched against the names of the transitions the
remote offers for the issue (case-insensitive). The local mirror is
updated to the transition's resulting status so the board reflects the
move immediately, without waiting for the next sync.

Local tasks (L-* keys) have no remote workflow; for them the status
argument must be a board column and the move is purely local.

Example usage:
  kanbo move KAN-7 "In Progress"
  kanbo move KAN-7 Done
  kanbo move L-2 EXECUTION`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, target := args[0], args[1]

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		task, err := db.GetTaskContext(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", key, err)
		}

		normalizer, err := newNormalizer()
		if err != nil {
			return err
		}

		// Local tasks move locally; the argument names a column.
		if task.Origin == schema.OriginLocal {
			col, ok := status.ParseColumn(target)
			if !ok {
				if col, ok = normalizer.Normalize(target); !ok {
					return fmt.Errorf("unknown column %q (valid: %v)", target, status.Columns())
				}
			}
			task.RawStatus = string(col)
			task.Column = col
			if err := db.UpsertTaskContext(cmd.Context(), task); err != nil {
				return fmt.Errorf("failed to move %s: %w", key, err)
			}
			fmt.Printf("%s Moved %s to %s\n", ui.RenderPass("✓"), key, col)
			return nil
		}

		client, err := newJiraClient()
		if err != nil {
			return err
		}

		transitions, err := client.GetTransitions(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("failed to fetch transitions for %s: %w", key, err)
		}

		transition := matchTransition(transitions, target)
		if transition == nil {
			names := make([]string, 0, len(transitions))
			for _, t := range transitions {
				names = append(names, t.Name)
			}
			return fmt.Errorf("no transition %q for %s (available: %s)",
				target, key, strings.Join(names, ", "))
		}

		if err := client.ApplyTransition(cmd.Context(), key, transition.ID); err != nil {
			return fmt.Errorf("failed to apply transition: %w", err)
		}

		// Reflect the move locally right away
		newStatus := transition.To.Name
		if newStatus == "" {
			newStatus = transition.Name
		}
		col, _ := normalizer.Normalize(newStatus)
		task.RawStatus = newStatus
		task.Column = col
		if err := db.UpsertTaskContext(cmd.Context(), task); err != nil {
			return fmt.Errorf("transition applied but mirror update failed: %w", err)
		}

		fmt.Printf("%s Moved %s to %s (%s)\n", ui.RenderPass("✓"), key, newStatus, col)
		return nil
	},
}

// matchTransition finds a transition by name or by resulting status name.
func matchTransition(transitions []jira.Transition, target string) *jira.Transition {
	want := strings.ToLower(strings.TrimSpace(target))
	for i, t := range transitions {
		if strings.ToLower(t.Name) == want || strings.ToLower(t.To.Name) == want {
			return &transitions[i]
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(moveCmd)
}
