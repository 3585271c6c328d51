package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// projectConfigFile is the default project file name
const projectConfigFile = "deploycheck.toml"

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Endpoint      string     `toml:"endpoint"`
	Artifact      string     `toml:"artifact,omitempty"`
	Contract      string     `toml:"contract,omitempty"`
	Version       string     `toml:"version,omitempty"`
	Args          []any      `toml:"args,omitempty"`
	Factory       string     `toml:"factory,omitempty"`
	ReadyTimeout  string     `toml:"ready_timeout,omitempty"`
	DeployTimeout string     `toml:"deploy_timeout,omitempty"`
	PollInterval  string     `toml:"poll_interval,omitempty"`
	Ledger        LedgerTOML `toml:"ledger,omitempty"`
}

// LedgerTOML is the [ledger] table of the project file
type LedgerTOML struct {
	Type string `toml:"type,omitempty"`
	Path string `toml:"path,omitempty"`
	URL  string `toml:"url,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var endpointURL string
	var artifact string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create deploycheck.toml",
		Long: `Create a deploycheck.toml project file in the current directory.

The file stores the endpoint, the artifact to deploy, its default constructor
arguments and the harness timeouts. Environment variables and flags override it.

EXAMPLES:
  # Create a project file for the local sandbox
  deploycheck config init

  # Point at another endpoint and artifact
  deploycheck config init --endpoint http://sandbox:8545 --artifact out/Token.sol/Token.json

  # Overwrite an existing file
  deploycheck config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), projectConfigFile, endpointURL, artifact, force)
		},
	}

	cmd.Flags().StringVar(&endpointURL, "endpoint", defaultEndpoint, "service URL")
	cmd.Flags().StringVar(&artifact, "artifact", "", "contract artifact JSON (default: bundled Token)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the configuration sources and the effective harness settings.

EXAMPLES:
  deploycheck config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(w io.Writer, path, endpointURL, artifact string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	artifactLine := "# artifact = \"out/Token.sol/Token.json\""
	if artifact != "" {
		artifactLine = fmt.Sprintf("artifact = %q", artifact)
	}

	content := fmt.Sprintf(`# deploycheck project configuration

endpoint = %q

# Contract artifact (Foundry or Hardhat JSON). Without it the bundled Token is used.
%s
# contract = "Token"      # looked up under ./out in a Foundry project
# version = "1.0.0"

# Default constructor arguments. "$deployer" and "$admin" expand to the
# provisioned identities.
args = ["$admin", "TokenA", "AAA", 18]

ready_timeout = "5m"
deploy_timeout = "2m"
poll_interval = "250ms"

# Record attempts so salts are never reused across runs.
# [ledger]
# type = "sqlite"
# path = "./data/deploycheck.db"
`, endpointURL, artifactLine)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", path)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Edit %s to customize settings\n", path)
	fmt.Fprintln(w, "  2. Run 'deploycheck check' to probe the endpoint")
	fmt.Fprintln(w, "  3. Run 'deploycheck deploy' to verify a deployment")

	return nil
}

func runConfigShow(w io.Writer) error {
	fmt.Fprintln(w, "Configuration sources (in order of precedence):")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "1. Command line flags")
	fmt.Fprintln(w, "   --endpoint, --config, --output")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "2. Environment variables")
	for _, name := range []string{"SANDBOX_URL", "READY_TIMEOUT_SECONDS", "DEPLOY_TIMEOUT_SECONDS", "FACTORY_ADDRESS", "LEDGER_TYPE", "SQLITE_PATH"} {
		if v := os.Getenv(name); v != "" {
			fmt.Fprintf(w, "   %s=%s\n", name, v)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", name)
		}
	}
	if os.Getenv("DATABASE_URL") != "" {
		fmt.Fprintln(w, "   DATABASE_URL=(set)")
	}
	if os.Getenv("TEST_PRIVATE_KEYS") != "" {
		fmt.Fprintln(w, "   TEST_PRIVATE_KEYS=(set)")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "3. Project config (%s)\n", projectConfigFile)
	project, path, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "   (not found)")
		} else {
			fmt.Fprintf(w, "   Error: %v\n", err)
		}
	} else {
		fmt.Fprintf(w, "   Loaded from: %s\n", path)
		if project.Endpoint != "" {
			fmt.Fprintf(w, "   endpoint: %s\n", project.Endpoint)
		}
		if project.Artifact != "" {
			fmt.Fprintf(w, "   artifact: %s\n", project.Artifact)
		}
		if project.Contract != "" {
			fmt.Fprintf(w, "   contract: %s\n", project.Contract)
		}
		if len(project.Args) > 0 {
			fmt.Fprintf(w, "   args: %v\n", project.Args)
		}
		if project.Ledger.Type != "" {
			fmt.Fprintf(w, "   ledger: %s\n", project.Ledger.Type)
		}
	}
	fmt.Fprintln(w)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Effective configuration:")
	fmt.Fprintf(w, "   Endpoint:       %s\n", cfg.Harness.Endpoint)
	fmt.Fprintf(w, "   Factory:        %s\n", cfg.Harness.Factory)
	fmt.Fprintf(w, "   Ready timeout:  %s\n", cfg.Harness.ReadyTimeout)
	fmt.Fprintf(w, "   Deploy timeout: %s\n", cfg.Harness.DeployTimeout)
	fmt.Fprintf(w, "   Poll interval:  %s\n", cfg.Harness.PollInterval)
	fmt.Fprintf(w, "   Ledger:         %s\n", cfg.Ledger.Type)

	return nil
}

// loadProjectConfig loads the project config from --config or deploycheck.toml.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	path := projectConfigFile
	if cfgFile != "" {
		path = cfgFile
	}
	config, err := loadProjectConfigFromPath(path)
	if err != nil {
		return nil, path, err
	}
	return config, path, nil
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but warns about parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}
