package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
	"github.com/kanbo-dev/kanbo/internal/ui"
)

var remapCmd = &cobra.Command{
	Use:     "remap [label] [column]",
	GroupID: "board",
	Short:   "Map unrecognized status labels to columns",
	Long: `Assign board columns to status labels the normalizer could not place.

Labels that fall through to the TO DO default are recorded by sync; this
command walks through them and saves your choices as overrides in the
config file. Overrides win over the built-in mapping on the next sync.

With no arguments an interactive picker runs. Passing a label and a
column records the override directly:

  kanbo remap                          # Interactive
  kanbo remap "État Inconnu" TESTING\ &\ REVIEW`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Direct form: label and column given
		if len(args) == 2 {
			col, ok := status.ParseColumn(args[1])
			if !ok {
				return fmt.Errorf("unknown column %q (valid: %v)", args[1], status.Columns())
			}
			if err := cfg.SaveOverride(args[0], col); err != nil {
				return fmt.Errorf("failed to save override: %w", err)
			}
			fmt.Printf("%s Mapped %q to %s\n", ui.RenderPass("✓"), args[0], col)
			fmt.Println("   Run 'kanbo sync' to apply the new mapping")
			return nil
		}
		if len(args) == 1 {
			return fmt.Errorf("pass both a label and a column, or neither")
		}

		if !ui.IsInteractive() {
			return fmt.Errorf("not a terminal: use 'kanbo remap <label> <column>'")
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		labels, err := unmappedLabels(cmd, db)
		if err != nil {
			return err
		}
		if len(labels) == 0 {
			fmt.Printf("%s No unmapped statuses. Nothing to do.\n", ui.RenderPass("✓"))
			return nil
		}

		columnNames := make([]string, 0, len(status.Columns()))
		for _, col := range status.Columns() {
			columnNames = append(columnNames, string(col))
		}

		for _, label := range labels {
			var choice string
			skip := "(skip)"

			form := huh.NewForm(huh.NewGroup(
				huh.NewSelect[string]().
					Title(fmt.Sprintf("Column for %q", label)).
					Options(huh.NewOptions(append([]string{skip}, columnNames...)...)...).
					Value(&choice),
			))
			if err := form.Run(); err != nil {
				return fmt.Errorf("remap aborted: %w", err)
			}
			if choice == skip {
				continue
			}

			col, _ := status.ParseColumn(choice)
			if err := cfg.SaveOverride(label, col); err != nil {
				return fmt.Errorf("failed to save override for %q: %w", label, err)
			}
			fmt.Printf("%s Mapped %q to %s\n", ui.RenderPass("✓"), label, col)
		}

		fmt.Println("Run 'kanbo sync' to apply the new mappings")
		return nil
	},
}

// unmappedLabels reads the labels recorded by the last sync.
func unmappedLabels(cmd *cobra.Command, db *store.DB) ([]string, error) {
	raw, err := db.GetMeta(cmd.Context(), store.MetaUnmappedLabels)
	if err != nil || raw == "" {
		return nil, nil
	}

	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("failed to decode unmapped labels: %w", err)
	}
	return labels, nil
}

func init() {
	rootCmd.AddCommand(remapCmd)
}
