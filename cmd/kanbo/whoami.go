package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/ui"
)

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "sync",
	Short:   "Verify tracker credentials",
	Long: `Call the remote tracker and print the authenticated identity.

Useful after editing the config to confirm the URL, email, and API token
work before running a sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newJiraClient()
		if err != nil {
			return err
		}

		identity, err := client.Myself(cmd.Context())
		if err != nil {
			return fmt.Errorf("authentication check failed: %w", err)
		}

		fmt.Printf("%s Authenticated as %s", ui.RenderPass("✓"), identity.DisplayName)
		if identity.EmailAddress != "" {
			fmt.Printf(" <%s>", identity.EmailAddress)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
