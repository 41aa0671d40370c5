package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
	"github.com/KiKaraage/eastyles-sub002/pkg/variables"
)

// resolveOpts holds the command-line flags for the resolve command.
type resolveOpts struct {
	sets   []string // name=value overrides
	output string   // output file path (stdout if empty)
}

// newResolveCmd creates the resolve command, which substitutes variable
// values into a style document's CSS.
func newResolveCmd() *cobra.Command {
	opts := &resolveOpts{}

	cmd := &cobra.Command{
		Use:   "resolve <style.toml>",
		Short: "Substitute variable values into a style's CSS",
		Long: `Resolve loads a style document, merges the document's stored variable
values with any --set overrides, and prints the final CSS with every
variable placeholder substituted. Placeholders without a value keep
their embedded default; placeholders without a default are left as
written so the CSS stays valid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "override a variable (name=value, repeatable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write CSS to file instead of stdout")
	return cmd
}

// parseSet splits a name=value flag into its parts.
func parseSet(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid --set %q: expected name=value", s)
	}
	return name, value, nil
}

func runResolve(cmd *cobra.Command, path string, opts *resolveOpts) error {
	logger := loggerFromContext(cmd.Context())

	doc, err := style.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load style: %w", err)
	}

	values := doc.Values()
	for _, s := range opts.sets {
		name, value, err := parseSet(s)
		if err != nil {
			return err
		}
		values[name] = value
	}
	logger.Debug("resolving", "style", doc.ID, "variables", len(values))

	css := variables.New().Resolve(doc.Source, values)

	if opts.output == "" {
		fmt.Print(css)
		return nil
	}
	if err := os.WriteFile(opts.output, []byte(css), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	printSuccess("Resolved %s", doc.Name)
	printFile(opts.output)
	return nil
}
