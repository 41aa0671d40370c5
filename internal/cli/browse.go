package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/KiKaraage/eastyles-sub002/pkg/match"
	"github.com/KiKaraage/eastyles-sub002/pkg/registry"
)

// browseOpts holds the command-line flags for the browse command.
type browseOpts struct {
	dir string // style directory
	url string // optional page URL to show match status for
}

// newBrowseCmd creates the browse command, an interactive list of
// installed styles.
func newBrowseCmd() *cobra.Command {
	opts := &browseOpts{}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Interactively browse and toggle installed styles",
		Long: `Browse opens an interactive list of the styles installed in the style
directory. Toggling a style's enabled state is persisted back to its
document, so connected sessions watching the directory pick the change
up immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "styles", "s", ".", "directory of style documents")
	cmd.Flags().StringVarP(&opts.url, "url", "u", "", "page URL to show match status for")
	return cmd
}

func runBrowse(cmd *cobra.Command, opts *browseOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	store, err := registry.NewDir(opts.dir, logger)
	if err != nil {
		return fmt.Errorf("open style directory: %w", err)
	}
	docs, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list styles: %w", err)
	}

	model := NewStyleListModel(docs)
	if opts.url != "" {
		matcher := match.New()
		matched := make([]bool, len(docs))
		for i, d := range docs {
			matched[i] = matcher.Matches(opts.url, d.Rules)
		}
		model = model.WithMatches(opts.url, matched)
	}
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("run browser: %w", err)
	}

	m, ok := final.(StyleListModel)
	if !ok || len(m.Toggles) == 0 {
		return nil
	}

	// Persist only the net state per style, not every keypress.
	net := make(map[string]bool, len(m.Toggles))
	for _, t := range m.Toggles {
		net[t.ID] = t.Enabled
	}
	for id, enabled := range net {
		doc, err := store.Get(ctx, id)
		if err != nil {
			printWarning("style %s vanished: %v", id, err)
			continue
		}
		doc.Enabled = enabled
		if err := store.Put(ctx, *doc); err != nil {
			return fmt.Errorf("save style %s: %w", id, err)
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		printSuccess("%s %s", doc.Name, state)
	}
	return nil
}
