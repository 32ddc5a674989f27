package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kanbo-dev/kanbo/internal/daemon"
	"github.com/kanbo-dev/kanbo/internal/server"
	"github.com/kanbo-dev/kanbo/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync pipeline on an interval",
	Long: `Run sync continuously: once at startup, then on a fixed interval.

If a mapping file is configured it is watched for changes; edits are
picked up without a restart. With --serve, a WebSocket server broadcasts
each sync result and a fresh board snapshot to connected clients.

Example usage:
  kanbo daemon                          # Sync every 5 minutes
  kanbo daemon --interval 1m            # Custom interval
  kanbo daemon --serve --port 8080      # Also broadcast over WebSocket
  kanbo daemon --log-file kanbo.log     # Rotate logs to a file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		serve, _ := cmd.Flags().GetBool("serve")
		port, _ := cmd.Flags().GetInt("port")
		logFile, _ := cmd.Flags().GetString("log-file")

		var out io.Writer = os.Stderr
		if logFile != "" {
			out = &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}
		}
		logger := log.New(out, "[daemon] ", log.LstdFlags)

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		// The daemon owns the sync lock for its whole lifetime
		lock := flock.New(lockPath())
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another sync is in progress")
		}
		defer func() { _ = lock.Unlock() }()

		d, err := daemon.New(func() (sync.Orchestrator, error) {
			return newOrchestrator(db)
		}, &daemon.Config{
			SyncInterval: interval,
			MappingFile:  cfg.MappingFile,
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		if serve {
			srv := server.NewServer(db, &server.Config{Port: port, Logger: logger})
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start board server: %w", err)
			}
			defer func() { _ = srv.Stop() }()

			d.OnResult(srv.BroadcastSyncResult)
			fmt.Printf("Board server listening on %s\n", srv.GetAddr())
		}

		fmt.Printf("Syncing %s every %v. Press Ctrl+C to stop...\n", cfg.ProjectKey, interval)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			return err
		}

		fmt.Println("\nDaemon stopped")
		return nil
	},
}

func init() {
	daemonCmd.Flags().DurationP("interval", "i", 5*time.Minute, "Sync interval")
	daemonCmd.Flags().Bool("serve", false, "Also serve the board over WebSocket")
	daemonCmd.Flags().IntP("port", "p", 8080, "Board server port (with --serve)")
	daemonCmd.Flags().String("log-file", "", "Log to a rotating file instead of stderr")

	rootCmd.AddCommand(daemonCmd)
}
