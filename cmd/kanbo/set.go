package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var setCmd = &cobra.Command{
	Use:     "set <key>",
	GroupID: "board",
	Short:   "Set story points or due date on a task",
	Long: `Update a task's estimate fields.

For remote tasks the update is written through to the tracker using the
configured custom field ids (story_points_field, due_date_field), then
mirrored locally. For local tasks only the mirror changes.

Example usage:
  kanbo set KAN-7 --points 5
  kanbo set KAN-7 --due "next friday"
  kanbo set L-2 --points 2 --due 2026-09-15`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		points, _ := cmd.Flags().GetFloat64("points")
		dueText, _ := cmd.Flags().GetString("due")

		if !cmd.Flags().Changed("points") && dueText == "" {
			return fmt.Errorf("nothing to set: pass --points and/or --due")
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		task, err := db.GetTaskContext(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", key, err)
		}

		if dueText != "" {
			due, err := parseDue(dueText)
			if err != nil {
				return err
			}
			task.DueAt = due
		}
		if cmd.Flags().Changed("points") {
			task.StoryPoints = &points
		}

		// Write through to the tracker for remote tasks
		if task.Origin == schema.OriginRemote {
			client, err := newJiraClient()
			if err != nil {
				return err
			}

			fields := make(map[string]interface{})
			if cmd.Flags().Changed("points") {
				fields[cfg.StoryPointsField] = points
			}
			if task.DueAt != nil && dueText != "" {
				due := task.DueAt.Format("2006-01-02")
				fields["duedate"] = due
				if cfg.DueDateField != "" {
					fields[cfg.DueDateField] = due
				}
			}

			if err := client.UpdateIssue(cmd.Context(), key, fields); err != nil {
				return fmt.Errorf("failed to update %s on the tracker: %w", key, err)
			}
		}

		if err := db.UpsertTaskContext(cmd.Context(), task); err != nil {
			return fmt.Errorf("failed to update mirror: %w", err)
		}

		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), key)
		if cmd.Flags().Changed("points") {
			fmt.Printf("   Points: %g\n", points)
		}
		if task.DueAt != nil && dueText != "" {
			fmt.Printf("   Due: %s\n", task.DueAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	setCmd.Flags().Float64("points", 0, "Story points")
	setCmd.Flags().StringP("due", "d", "", "Due date (\"next friday\", \"2026-09-15\")")

	rootCmd.AddCommand(setCmd)
}
