package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Serve the board over HTTP and WebSocket",
	Long: `Start a board server without running sync.

Endpoints:
  /ws         WebSocket push (sync results, board snapshots)
  /api/board  Current board as JSON, grouped by column
  /health     Server health and client count

The server reads whatever is in the mirror; pair it with 'kanbo daemon'
(or 'kanbo daemon --serve' to run both in one process) for live updates.

Example usage:
  kanbo serve                # Start on default port 8080
  kanbo serve --port 9000    # Start on custom port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		srv := server.NewServer(db, &server.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[serve] ", log.LstdFlags),
		})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start board server: %w", err)
		}

		fmt.Printf("Board server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Board snapshot: http://localhost:%d/api/board\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down board server...")
		if err := srv.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}

		fmt.Println("Board server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
