package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "board",
	Short:   "Manage local tasks",
	Long: `Manage tasks that live only in the local mirror.

Local tasks never come from the remote tracker and are never pruned by
sync. Use them for personal reminders and side work that doesn't belong
in the tracker.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <summary>",
	Short: "Add a local task",
	Long: `Add a local task to the board.

The due date is parsed from natural language ("next friday", "tomorrow",
"2026-09-15"). The task gets an L-<n> key and lands in TO DO unless
--column says otherwise.

Example usage:
  kanbo task add "Write release notes"
  kanbo task add "Prep demo" --due "next thursday" --column READY
  kanbo task add "Spike caching" --points 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := strings.TrimSpace(args[0])
		if summary == "" {
			return fmt.Errorf("summary must not be empty")
		}

		columnName, _ := cmd.Flags().GetString("column")
		dueText, _ := cmd.Flags().GetString("due")
		points, _ := cmd.Flags().GetFloat64("points")

		column := status.ColumnTodo
		if columnName != "" {
			col, ok := status.ParseColumn(columnName)
			if !ok {
				return fmt.Errorf("unknown column %q (valid: %v)", columnName, status.Columns())
			}
			column = col
		}

		var dueAt *time.Time
		if dueText != "" {
			due, err := parseDue(dueText)
			if err != nil {
				return err
			}
			dueAt = due
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		key, err := nextLocalKey(cmd, db)
		if err != nil {
			return err
		}

		task := &schema.Task{
			Key:       key,
			Summary:   summary,
			RawStatus: string(column),
			Column:    column,
			DueAt:     dueAt,
			SyncEpoch: time.Now().UnixMilli(),
			Origin:    schema.OriginLocal,
		}
		if points > 0 {
			task.StoryPoints = &points
		}

		if err := db.UpsertTaskContext(cmd.Context(), task); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}

		fmt.Printf("%s Added %s to %s\n", ui.RenderPass("✓"), key, column)
		if dueAt != nil {
			fmt.Printf("   Due: %s\n", dueAt.Format("2006-01-02"))
		}
		return nil
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Remove a local task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		task, err := db.GetTaskContext(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("failed to look up %s: %w", key, err)
		}
		if task.Origin != schema.OriginLocal {
			return fmt.Errorf("%s is a remote task; it is managed by sync", key)
		}

		if err := db.DeleteTaskContext(cmd.Context(), key); err != nil {
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}

		fmt.Printf("%s Removed %s\n", ui.RenderPass("✓"), key)
		return nil
	},
}

// parseDue parses natural-language and ISO dates.
func parseDue(text string) (*time.Time, error) {
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return &t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if result == nil {
		return nil, fmt.Errorf("could not understand due date %q", text)
	}
	return &result.Time, nil
}

// nextLocalKey assigns L-1, L-2, ... after the highest existing local key.
func nextLocalKey(cmd *cobra.Command, db *store.DB) (string, error) {
	tasks, err := db.ListTasksContext(cmd.Context(), store.ListTasksFilter{Origin: schema.OriginLocal})
	if err != nil {
		return "", fmt.Errorf("failed to list local tasks: %w", err)
	}

	max := 0
	for _, t := range tasks {
		if n, err := strconv.Atoi(strings.TrimPrefix(t.Key, "L-")); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("L-%d", max+1), nil
}

func init() {
	taskAddCmd.Flags().StringP("column", "c", "", "Column to place the task in (default TO DO)")
	taskAddCmd.Flags().StringP("due", "d", "", "Due date (\"next friday\", \"2026-09-15\")")
	taskAddCmd.Flags().Float64("points", 0, "Story points")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskRemoveCmd)
	rootCmd.AddCommand(taskCmd)
}
