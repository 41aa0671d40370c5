package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package during initialization with
// values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the eastyles CLI and returns an error if any command fails.
// This is the main entry point for the CLI application. Cancelling ctx
// stops long-running commands like serve and apply --watch.
//
// The function sets up the root command with all subcommands (check, resolve,
// apply, browse, serve), configures logging based on the --verbose flag, and
// executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "eastyles",
		Short:        "Eastyles applies user styles to pages",
		Long:         `Eastyles manages a registry of user style documents, matches them against page URLs with domain rules, resolves their variables into final CSS, and delivers the result through layered injection strategies.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("eastyles %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newInstallCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newApplyCmd())
	root.AddCommand(newBrowseCmd())
	root.AddCommand(newServeCmd())

	return root.ExecuteContext(ctx)
}
