package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deploycheck/internal/config"
)

var (
	cfgFile  string
	endpoint string
	output   string
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deploycheck",
		Short: "Deployment verification harness",
		Long: `deploycheck deploys a contract to a sandbox endpoint and verifies that the
address the endpoint reports matches the address derived locally.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project file (default: deploycheck.toml)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "service URL (default from SANDBOX_URL or project file)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output format: text, json or yaml (default: text on a terminal, json otherwise)")

	// Add subcommands
	rootCmd.AddCommand(createCheckCmd())
	rootCmd.AddCommand(createAccountsCmd())
	rootCmd.AddCommand(createDeriveCmd())
	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createHistoryCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// getEndpoint returns the service URL from flag, env, project file, or default
func getEndpoint() string {
	// 1. Command line flag
	if endpoint != "" {
		return endpoint
	}

	// 2. Environment variable
	if env := os.Getenv("SANDBOX_URL"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if project := loadProjectConfigSilent(); project != nil && project.Endpoint != "" {
		return project.Endpoint
	}

	// 4. Default
	return defaultEndpoint
}

const defaultEndpoint = "http://localhost:8545"

// loadConfig loads the environment configuration and overlays the project
// file wherever the matching variable is unset.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if project := loadProjectConfigSilent(); project != nil {
		if err := applyProjectConfig(cfg, project); err != nil {
			return nil, err
		}
	}
	cfg.Harness.Endpoint = getEndpoint()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyProjectConfig(cfg *config.Config, p *ProjectConfig) error {
	setDuration := func(env, value string, dst *time.Duration) error {
		if value == "" || os.Getenv(env) != "" {
			return nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("project config: %s: %w", env, err)
		}
		*dst = d
		return nil
	}

	if err := setDuration("READY_TIMEOUT_SECONDS", p.ReadyTimeout, &cfg.Harness.ReadyTimeout); err != nil {
		return err
	}
	if err := setDuration("DEPLOY_TIMEOUT_SECONDS", p.DeployTimeout, &cfg.Harness.DeployTimeout); err != nil {
		return err
	}
	if err := setDuration("POLL_INTERVAL_MS", p.PollInterval, &cfg.Harness.PollInterval); err != nil {
		return err
	}
	if p.Factory != "" && os.Getenv("FACTORY_ADDRESS") == "" {
		cfg.Harness.Factory = p.Factory
	}

	if os.Getenv("LEDGER_TYPE") == "" && os.Getenv("DATABASE_URL") == "" {
		if p.Ledger.Type != "" {
			cfg.Ledger.Type = p.Ledger.Type
		}
		if p.Ledger.URL != "" {
			cfg.Ledger.Postgres.URL = p.Ledger.URL
		}
	}
	if p.Ledger.Path != "" && os.Getenv("SQLITE_PATH") == "" {
		cfg.Ledger.SQLite.Path = p.Ledger.Path
	}
	return nil
}

// setupLogger builds the CLI logger. Logs go to stderr so reports on stdout
// stay machine readable.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
