// Package config loads kanbo's settings.
//
// Settings merge from three layers, later layers winning:
//  1. Built-in defaults.
//  2. The global config file (~/.config/kanbo/config.yaml), with
//     KANBO_* environment variable overrides.
//  3. The workspace file (.kanbo/config.toml) in the working directory,
//     which typically pins the project key and assignee per checkout.
//
// The deployment-specific custom field ids (story points, planned due
// date) live here because they vary per remote deployment and must never
// be hard-coded.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/kanbo-dev/kanbo/internal/status"
)

// Defaults.
const (
	DefaultStoryPointsField = "customfield_10016"
	DefaultPageSize         = 50
	DefaultTimeout          = 30 * time.Second
	DefaultDBPath           = ".kanbo/board.db"
	DefaultReportModel      = "claude-sonnet-4-0"
)

// Config is the merged view of all settings.
type Config struct {
	// Remote tracker connection.
	JiraURL      string `mapstructure:"jira_url"`
	JiraEmail    string `mapstructure:"jira_email"`
	JiraAPIToken string `mapstructure:"jira_api_token"`

	// Sync scope.
	ProjectKey string `mapstructure:"project"`
	Assignee   string `mapstructure:"assignee"`

	// Deployment-specific custom field ids.
	StoryPointsField string `mapstructure:"story_points_field"`
	DueDateField     string `mapstructure:"due_date_field"`

	// Fetch tuning.
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// Status mapping.
	StatusOverrides map[string]string `mapstructure:"status_overrides"`
	MappingFile     string            `mapstructure:"mapping_file"`

	// Local mirror.
	DBPath string `mapstructure:"db_path"`

	// Report generation.
	ReportModel string `mapstructure:"report_model"`

	// path the config was loaded from, for SaveOverride.
	path string
}

// workspaceConfig is the per-checkout overlay (.kanbo/config.toml).
type workspaceConfig struct {
	Project     string `toml:"project"`
	Assignee    string `toml:"assignee"`
	DBPath      string `toml:"db_path"`
	MappingFile string `toml:"mapping_file"`
}

// DefaultConfigPath returns the global config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "kanbo", "config.yaml")
}

// WorkspaceConfigPath returns the per-checkout overlay location under dir.
func WorkspaceConfigPath(dir string) string {
	return filepath.Join(dir, ".kanbo", "config.toml")
}

// Load reads the merged configuration.
//
// configPath may be "" to use DefaultConfigPath(). workspaceDir may be ""
// to skip the workspace overlay. A missing global config file is not an
// error: defaults plus environment still apply.
func Load(configPath, workspaceDir string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("story_points_field", DefaultStoryPointsField)
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("report_model", DefaultReportModel)

	v.SetEnvPrefix("KANBO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// AutomaticEnv only surfaces keys viper already knows about through
	// Unmarshal, so every key must be bound explicitly or env-only
	// credentials (KANBO_JIRA_API_TOKEN etc.) would be ignored.
	for _, key := range []string{
		"jira_url", "jira_email", "jira_api_token",
		"project", "assignee",
		"story_points_field", "due_date_field",
		"page_size", "timeout",
		"mapping_file", "db_path", "report_model",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}
	cfg.path = configPath

	if workspaceDir != "" {
		if err := cfg.applyWorkspace(WorkspaceConfigPath(workspaceDir)); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// applyWorkspace overlays the per-checkout TOML file when present.
func (c *Config) applyWorkspace(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read workspace config %s: %w", path, err)
	}

	var ws workspaceConfig
	if err := toml.Unmarshal(data, &ws); err != nil {
		return fmt.Errorf("failed to parse workspace config %s: %w", path, err)
	}

	if ws.Project != "" {
		c.ProjectKey = ws.Project
	}
	if ws.Assignee != "" {
		c.Assignee = ws.Assignee
	}
	if ws.DBPath != "" {
		c.DBPath = ws.DBPath
	}
	if ws.MappingFile != "" {
		c.MappingFile = ws.MappingFile
	}

	return nil
}

// Validate checks that the settings the sync pipeline requires are present.
func (c *Config) Validate() error {
	var missing []string
	if c.JiraURL == "" {
		missing = append(missing, "jira_url")
	}
	if c.JiraEmail == "" {
		missing = append(missing, "jira_email")
	}
	if c.JiraAPIToken == "" {
		missing = append(missing, "jira_api_token")
	}
	if c.ProjectKey == "" {
		missing = append(missing, "project")
	}
	if len(missing) > 0 {
		return fmt.Errorf("not configured: missing %s (edit %s or set KANBO_* env vars)",
			strings.Join(missing, ", "), c.path)
	}
	return nil
}

// ColumnOverrides converts the persisted status overrides into typed
// columns, dropping entries that name a column outside the fixed set.
func (c *Config) ColumnOverrides() map[string]status.Column {
	overrides := make(map[string]status.Column, len(c.StatusOverrides))
	for label, name := range c.StatusOverrides {
		if column, ok := status.ParseColumn(name); ok {
			overrides[strings.ToLower(label)] = column
		}
	}
	return overrides
}

// SaveOverride persists one status-label override into the global config
// file, creating the file if needed.
func (c *Config) SaveOverride(label string, column status.Column) error {
	v := viper.New()
	v.SetConfigFile(c.path)
	v.SetConfigType("yaml")
	_ = v.ReadInConfig() // a missing file is fine, we create it below

	// viper lower-cases keys on read; keep the convention on write too.
	overrides := v.GetStringMapString("status_overrides")
	if overrides == nil {
		overrides = make(map[string]string)
	}
	overrides[strings.ToLower(label)] = string(column)
	v.Set("status_overrides", overrides)

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if c.StatusOverrides == nil {
		c.StatusOverrides = make(map[string]string)
	}
	c.StatusOverrides[strings.ToLower(label)] = string(column)
	return nil
}
