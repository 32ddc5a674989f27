package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/report"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "advanced",
	Short:   "Generate a sprint status report",
	Long: `Summarize the current board into a short status report.

The board snapshot is sent to the Anthropic Messages API; the model named
by report_model in the config writes the summary. Requires the
ANTHROPIC_API_KEY environment variable.

Example usage:
  kanbo report
  kanbo report --out status.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		generator, err := report.NewGenerator(db, cfg.ReportModel)
		if err != nil {
			return err
		}

		fmt.Printf("%s Generating report with %s...\n", ui.RenderAccent("✎"), cfg.ReportModel)

		text, err := generator.Generate(cmd.Context())
		if err != nil {
			return fmt.Errorf("report generation failed: %w", err)
		}

		if out != "" {
			if err := os.WriteFile(out, []byte(text+"\n"), 0600); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Printf("%s Report written to %s\n", ui.RenderPass("✓"), out)
			return nil
		}

		fmt.Println()
		fmt.Println(text)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringP("out", "o", "", "Write the report to a file instead of stdout")

	rootCmd.AddCommand(reportCmd)
}
