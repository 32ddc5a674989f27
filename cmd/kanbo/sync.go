package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/sync"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Refresh the board mirror from the remote tracker",
	Long: `Run the sync pipeline once:

  1. Resolve the project's board (scrum preferred)
  2. Resolve the current sprint (active, then future, then closed)
  3. Fetch your sprint issues
  4. Fetch your backlog issues

Sprint and backlog results are merged (sprint wins on conflicts), status
labels are normalized onto board columns, and remote rows missing from
this run are pruned. Local tasks are never pruned.

If board resolution fails outright, sync falls back to a plain
assignee search so the mirror still refreshes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		// One sync at a time per workspace
		lock := flock.New(lockPath())
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another sync is in progress")
		}
		defer func() { _ = lock.Unlock() }()

		orchestrator, err := newOrchestrator(db)
		if err != nil {
			return err
		}

		fmt.Printf("%s Syncing %s...\n", ui.RenderAccent("🔄"), cfg.ProjectKey)

		result, err := orchestrator.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		printSyncResult(result)
		return nil
	},
}

func printSyncResult(result *sync.Result) {
	fmt.Printf("%s Sync complete in %v (method: %s)\n",
		ui.RenderPass("✓"), result.Duration.Round(time.Millisecond), result.Method)
	if result.BoardName != "" {
		fmt.Printf("   Board: %s\n", result.BoardName)
	}
	if result.SprintName != "" {
		fmt.Printf("   Sprint: %s (%s)\n", result.SprintName, result.SprintState)
	}
	fmt.Printf("   Merged: %d (sprint: %d, backlog: %d)\n",
		result.Merged, result.SprintIssues, result.BacklogIssues)
	fmt.Printf("   Upserted: %d, pruned: %d\n", result.Upserted, result.Pruned)

	for _, step := range result.Degraded {
		fmt.Printf("   %s Degraded: %s\n", ui.RenderWarn("⚠"), step)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "   %s %s\n", ui.RenderWarn("⚠"), warning)
	}
	if len(result.Unmapped) > 0 {
		fmt.Printf("   %s Unmapped statuses (defaulted to TO DO): %v\n",
			ui.RenderWarn("⚠"), result.Unmapped)
		fmt.Printf("   Run 'kanbo remap' to assign them to columns\n")
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
