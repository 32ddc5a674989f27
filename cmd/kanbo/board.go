package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: "board",
	Short:   "Show the kanban board",
	Long: `Render the board mirror grouped by column, in board order
(FUNNEL through CLOSED). Empty columns are omitted.

Run 'kanbo sync' first to populate the mirror.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		column, _ := cmd.Flags().GetString("column")
		origin, _ := cmd.Flags().GetString("origin")

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		filter := store.ListTasksFilter{Origin: origin}
		if column != "" {
			col, ok := status.ParseColumn(column)
			if !ok {
				return fmt.Errorf("unknown column %q (valid: %v)", column, status.Columns())
			}
			filter.Column = col
		}

		tasks, err := db.ListTasksContext(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}

		if len(tasks) == 0 {
			fmt.Printf("%s Board is empty. Run 'kanbo sync' to populate it.\n", ui.RenderWarn("⚠"))
			return nil
		}

		fmt.Print(ui.RenderBoard(tasks))
		return nil
	},
}

func init() {
	boardCmd.Flags().StringP("column", "c", "", "Show a single column (e.g. \"EXECUTION\")")
	boardCmd.Flags().StringP("origin", "o", "", "Filter by origin (remote or local)")

	rootCmd.AddCommand(boardCmd)
}
