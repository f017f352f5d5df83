package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"favsync/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd downloads when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "favsync",
	Short: "Mirror your remote favorites into local comic archives",
	Long: `favsync keeps a local mirror of the albums in your remote favorites list.

Every album is downloaded chapter by chapter and each chapter is packed into a
CBZ archive with ComicInfo.xml metadata. Progress is kept in a local SQLite
database so an interrupted run resumes where it stopped, and a run over an
unchanged favorites list costs a single request.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetColor(!noColor && isatty.IsTerminal(os.Stdout.Fd()))

		if quiet {
			logLevel = "error"
		} else if verbose && !cmd.Flags().Changed("log-level") {
			logLevel = "debug"
		}

		if !quiet && cmd.Name() != "help" && cmd.Name() != "version" {
			ui.PrintBanner()
		}
	},
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runDownload(cmd, args)
		return nil
	},
}

// Execute runs the root command and exits non-zero on usage errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./favsync.yaml or $HOME/.config/favsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show per-chapter progress and debug logs")

	rootCmd.SetVersionTemplate(`favsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags are the root flags every command passes to config.Load.
func globalFlags() map[string]interface{} {
	flags := map[string]interface{}{
		"log-level": logLevel,
		"no-color":  noColor,
	}
	return flags
}
