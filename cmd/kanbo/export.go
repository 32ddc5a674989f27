package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/export"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "advanced",
	Short:   "Export the mirror to JSONL",
	Long: `Write every task in the mirror to a JSONL file, one task per line.

The file is written atomically and can be re-imported with
'kanbo import', fed to jq, or kept as a backup.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := export.Dump(cmd.Context(), db, args[0])
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("%s Exported %d tasks to %s\n",
			ui.RenderPass("✓"), result.TasksWritten, result.Path)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Import tasks from JSONL",
	Long: `Import tasks from a JSONL file into the mirror.

Existing tasks with the same key are overwritten. Invalid lines are
skipped and reported. Use --dry-run to validate a file without writing,
and --backup to snapshot the current mirror first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := export.Load(cmd.Context(), db, args[0], export.LoadOptions{
			DryRun: dryRun,
			Backup: backup,
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		verb := "Imported"
		if dryRun {
			verb = "Validated"
		}
		fmt.Printf("%s %s %d tasks\n", ui.RenderPass("✓"), verb, result.TasksImported)
		if result.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", result.BackupCreated)
		}
		for _, e := range result.Errors {
			fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), e)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Validate without writing")
	importCmd.Flags().Bool("backup", false, "Snapshot the mirror before importing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
