package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kanbo-dev/kanbo/internal/config"
	"github.com/kanbo-dev/kanbo/internal/jira"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
	kanbosync "github.com/kanbo-dev/kanbo/internal/sync"
)

var (
	configPath   string
	workspaceDir string

	// cfg is loaded once in PersistentPreRunE and shared by all commands.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kanbo",
	Short: "Personal kanban board mirrored from a remote issue tracker",
	Long: `kanbo mirrors your work items from a remote issue tracker into a local
SQLite database and presents them as a twelve-column kanban board.

The mirror is refreshed by the sync pipeline (board -> sprint -> sprint
issues -> backlog issues). Free-text status labels, in any language, are
normalized onto fixed board columns; unrecognized labels land in TO DO and
are surfaced so you can remap them.

Local tasks created with 'kanbo task add' live only in the mirror and are
never touched by sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, workspaceDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: ~/.config/kanbo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "dir", ".",
		"Workspace directory holding .kanbo/")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "board", Title: "Board Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// dbPath resolves the mirror location relative to the workspace.
func dbPath() string {
	if filepath.IsAbs(cfg.DBPath) {
		return cfg.DBPath
	}
	return filepath.Join(workspaceDir, cfg.DBPath)
}

// lockPath is the cross-process sync lock next to the mirror.
func lockPath() string {
	return filepath.Join(filepath.Dir(dbPath()), "sync.lock")
}

// openStore opens the mirror and initializes its schema.
func openStore() (*store.DB, error) {
	path := dbPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize mirror schema: %w", err)
	}
	return db, nil
}

// newJiraClient builds a remote client from configuration.
func newJiraClient() (*jira.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return jira.NewClient(jira.Config{
		BaseURL:  cfg.JiraURL,
		Email:    cfg.JiraEmail,
		APIToken: cfg.JiraAPIToken,
		Timeout:  cfg.Timeout,
	})
}

// newNormalizer builds the status normalizer: default bilingual mapping,
// optional mapping file, plus per-label overrides from config.
func newNormalizer() (*status.Normalizer, error) {
	mapping := status.DefaultMapping()
	if cfg.MappingFile != "" {
		var err error
		mapping, err = status.LoadFile(mapping, cfg.MappingFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load mapping file: %w", err)
		}
	}
	return status.NewNormalizer(mapping, cfg.ColumnOverrides()), nil
}

// newOrchestrator wires a client, store, and normalizer into a run-ready
// pipeline. The caller owns closing the returned store.
func newOrchestrator(db *store.DB) (kanbosync.Orchestrator, error) {
	client, err := newJiraClient()
	if err != nil {
		return nil, err
	}
	normalizer, err := newNormalizer()
	if err != nil {
		return nil, err
	}
	return kanbosync.New(client, db, normalizer, kanbosync.Config{
		ProjectKey:       cfg.ProjectKey,
		Assignee:         cfg.Assignee,
		StoryPointsField: cfg.StoryPointsField,
		DueDateField:     cfg.DueDateField,
		PageSize:         cfg.PageSize,
	})
}
