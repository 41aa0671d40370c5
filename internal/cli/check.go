package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KiKaraage/eastyles-sub002/pkg/match"
	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// checkOpts holds the command-line flags for the check command.
type checkOpts struct {
	dir     string // style directory
	explain bool   // show per-rule verdicts
}

// newCheckCmd creates the check command, which reports which installed
// styles match a URL.
func newCheckCmd() *cobra.Command {
	opts := &checkOpts{}

	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Report which installed styles match a URL",
		Long: `Check loads every style document from the style directory, evaluates
each one's domain rules against the given URL, and reports the matching
styles. With --explain each rule's individual verdict is shown, which
helps debug why a style does or does not apply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "styles", "s", ".", "directory of style documents")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "show per-rule match verdicts")
	return cmd
}

func runCheck(cmd *cobra.Command, url string, opts *checkOpts) error {
	logger := loggerFromContext(cmd.Context())

	docs, err := style.LoadDir(opts.dir)
	if err != nil {
		return fmt.Errorf("load styles: %w", err)
	}
	logger.Debug("loaded styles", "dir", opts.dir, "count", len(docs))

	matcher := match.New()
	norm, host := match.Normalize(url)
	printInfo("Checking %s", StyleLink.Render(norm))
	if host != "" {
		printDetail("host %s", host)
	}
	printNewline()

	matched := 0
	for _, doc := range docs {
		ok := matcher.Matches(url, doc.Rules)
		if ok {
			matched++
			printSuccess("%s %s", doc.Name, StyleDim.Render(doc.ID))
		} else if opts.explain {
			printError("%s %s", doc.Name, StyleDim.Render(doc.ID))
		}
		if opts.explain {
			for _, v := range matcher.Explain(url, doc.Rules) {
				mark := iconError
				if v.Matched {
					mark = iconSuccess
				}
				mode := "exclude"
				if v.Rule.Include {
					mode = "include"
				}
				printDetail("%s %s %s %q", mark, mode, v.Rule.Kind, v.Rule.Pattern)
			}
		}
	}

	printNewline()
	if matched == 0 {
		printInfo("No styles match")
		return nil
	}
	printInfo("%d of %d styles match", matched, len(docs))
	printNextStep("Apply them", fmt.Sprintf("eastyles apply --styles %s --url %s", opts.dir, url))
	return nil
}
