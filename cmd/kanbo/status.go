package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/store"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "board",
	Short:   "Show mirror status",
	Long: `Display the current state of the board mirror.

Shows:
  - Mirror file location and size
  - Task count
  - Board and sprint recorded by the last sync
  - Last sync time and method
  - Status labels that could not be mapped to a column`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := dbPath()

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Mirror not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'kanbo sync' to create it\n\n")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check mirror: %w", err)
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		count, err := db.CountTasks(ctx)
		if err != nil {
			return fmt.Errorf("failed to count tasks: %w", err)
		}

		fmt.Printf("\n%s Mirror status\n", ui.RenderAccent("📋"))
		fmt.Printf("   Path: %s (%d KB)\n", path, info.Size()/1024)
		fmt.Printf("   Tasks: %d\n", count)

		if boardName, err := db.GetMeta(ctx, store.MetaBoardName); err == nil && boardName != "" {
			fmt.Printf("   Board: %s\n", boardName)
		}
		if sprintName, err := db.GetMeta(ctx, store.MetaSprintName); err == nil && sprintName != "" {
			state, _ := db.GetMeta(ctx, store.MetaSprintState)
			fmt.Printf("   Sprint: %s (%s)\n", sprintName, state)
		}

		if epochStr, err := db.GetMeta(ctx, store.MetaLastSyncEpoch); err == nil && epochStr != "" {
			if epoch, err := strconv.ParseInt(epochStr, 10, 64); err == nil {
				method, _ := db.GetMeta(ctx, store.MetaLastSyncMethod)
				last := time.UnixMilli(epoch)
				fmt.Printf("   Last sync: %s (%s ago, method: %s)\n",
					last.Format(time.RFC3339),
					time.Since(last).Round(time.Second), method)
			}
		} else {
			fmt.Printf("   Last sync: never\n")
		}

		if raw, err := db.GetMeta(ctx, store.MetaUnmappedLabels); err == nil && raw != "" {
			var labels []string
			if err := json.Unmarshal([]byte(raw), &labels); err == nil && len(labels) > 0 {
				fmt.Printf("   %s Unmapped statuses: %v\n", ui.RenderWarn("⚠"), labels)
				fmt.Printf("   Run 'kanbo remap' to assign them to columns\n")
			}
		}

		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
