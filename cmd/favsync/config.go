package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"favsync/pkg/config"
	"favsync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage favsync configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - FAVSYNC_* environment variables
  - .env files
  - Configuration file (YAML, or TOML by extension)
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to ./favsync.yaml unless a different path is given with
the --config flag.`,
	Run: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. The password is
masked.`,
	Run: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file, check every value and make sure the
output and database directories can be created.`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# favsync configuration file
#
# Every option can also be set through an environment variable prefixed
# with FAVSYNC_, for example FAVSYNC_USERNAME or FAVSYNC_OUTPUT_DIR.

remote:
  # Base URL of the remote API
  base_url: "http://localhost:8080/api"

  # Login; leave empty to use the account stored with 'favsync auth login'
  username: ""
  password: ""

  # Per-request timeout
  timeout: 20s

  user_agent: "favsync/1.0"

  # Web link written into ComicInfo.xml; %s is replaced by the album id
  item_url_format: ""

download:
  # Pages go to <output_dir>/originals, archives to <output_dir>/cbz
  output_dir: "./downloads"

  # Attempts per page
  retries: 3
  retry_delay: 500ms

  # Strip bracketed annotations such as [Group] from titles
  extract_title: false

  # Remove page files once a chapter has been packed
  delete_after_pack: false

  # Mirror the favorites list when no album ids are given
  favorites: true

  # Explicit album ids; when set the favorites list is not read
  album_ids: []

  # Pages downloaded in parallel per chapter (1-16)
  concurrent_pages: 1

  # Chapter directory and archive names; must contain %d
  chapter_format: "Chapter %d"

storage:
  database: "./downloads_db.sqlite"

rate_limit:
  requests_per_minute: 120
  burst_size: 4

logging:
  # debug, info, warn, error
  level: "info"

  # JSON log lines go here when set; the console gets human readable output
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "favsync.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Fprintln(ui.Out, "\nTo overwrite, first remove the existing file:")
		fmt.Fprintf(ui.Out, "  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Fprintln(ui.Out, "\nNext steps:")
	fmt.Fprintln(ui.Out, "1. Set base_url and either your login or run 'favsync auth login'")
	fmt.Fprintln(ui.Out, "2. Run 'favsync config validate' to check the configuration")
	fmt.Fprintln(ui.Out, "3. Run 'favsync' to mirror your favorites")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	data, err := yaml.Marshal(maskSecrets(*cfg))
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, string(data))

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(none found)"
	}
	fmt.Fprintln(ui.Out, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(ui.Out, "1. Command line flags")
	fmt.Fprintln(ui.Out, "2. Environment variables ("+config.EnvPrefix+"*)")
	fmt.Fprintln(ui.Out, "3. .env files")
	fmt.Fprintf(ui.Out, "4. Configuration file: %s\n", source)
	fmt.Fprintln(ui.Out, "5. Default values")
}

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg config.Config) config.Config {
	if p := cfg.Remote.Password; p != "" {
		if len(p) > 8 {
			cfg.Remote.Password = p[:2] + "..." + p[len(p)-2:]
		} else {
			cfg.Remote.Password = "***"
		}
	}
	return cfg
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		ui.PrintError("No configuration file found", "Specify a file with --config flag")
		os.Exit(1)
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	var warnings, problems []string

	if cfg.Remote.Username == "" {
		warnings = append(warnings, "no login configured; stored credentials or anonymous access will be used")
	}
	if cfg.Download.DeleteAfterPack {
		warnings = append(warnings, "delete_after_pack is on; repack will find no page directories")
	}

	for _, dir := range []string{cfg.Download.OutputDir, filepath.Dir(cfg.Storage.Database)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create %s: %v", dir, err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Fprintf(ui.Out, "  - %s\n", p)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			fmt.Fprintf(ui.Out, "  - %s\n", w)
		}
		fmt.Fprintln(ui.Out)
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Fprintln(ui.Out, "\nConfiguration summary:")
	fmt.Fprintf(ui.Out, "  Remote: %s\n", cfg.Remote.BaseURL)
	fmt.Fprintf(ui.Out, "  Output directory: %s\n", cfg.Download.OutputDir)
	fmt.Fprintf(ui.Out, "  Database: %s\n", cfg.Storage.Database)
	fmt.Fprintf(ui.Out, "  Concurrent pages: %d\n", cfg.Download.ConcurrentPages)
	fmt.Fprintf(ui.Out, "  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Fprintf(ui.Out, "  Retries: %d\n", cfg.Download.Retries)
	fmt.Fprintf(ui.Out, "  Log level: %s\n", cfg.Logging.Level)
}
