package cli

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KiKaraage/eastyles-sub002/pkg/delivery"
	"github.com/KiKaraage/eastyles-sub002/pkg/host"
	"github.com/KiKaraage/eastyles-sub002/pkg/page"
	"github.com/KiKaraage/eastyles-sub002/pkg/registry"
)

// applyOpts holds the command-line flags for the apply command.
type applyOpts struct {
	dir        string   // style directory
	url        string   // initial page URL
	privileged bool     // expose the host-mediated insertion API
	deny       []string // capabilities to deny, simulating page policy
	watch      bool     // keep running, follow style and navigation changes
}

// newApplyCmd creates the apply command, which runs a simulated page
// session against a directory of style documents.
func newApplyCmd() *cobra.Command {
	opts := &applyOpts{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run a simulated page session against a style directory",
		Long: `Apply stands up an in-memory page at --url, loads the style directory
into a registry, and runs a full page session: matching, variable
resolution, and delivery through the layered injection strategies.

Denying capabilities with --deny simulates restrictive page policies
and shows how delivery falls back across strategies. With --watch the
session keeps running: edits to the style directory are picked up via
filesystem events, and URLs read from stdin trigger navigations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "styles", "s", ".", "directory of style documents")
	cmd.Flags().StringVarP(&opts.url, "url", "u", "https://example.com/", "page URL for the session")
	cmd.Flags().BoolVar(&opts.privileged, "privileged", true, "expose the host-mediated insertion API")
	cmd.Flags().StringSliceVar(&opts.deny, "deny", nil, "deny capabilities (node, sheet, privileged)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "keep running and follow style changes")
	return cmd
}

// capabilityFor maps a --deny flag value to a host capability and a
// policy error that simulates the page refusing it.
func capabilityFor(name string) (host.Capability, error, error) {
	switch name {
	case "node":
		return host.CapNode, &host.PolicyError{Directive: "style-src", Reason: "style nodes blocked"}, nil
	case "sheet":
		return host.CapSheet, &host.PolicyError{Directive: "trusted-types", Reason: "constructed sheets blocked"}, nil
	case "privileged":
		return host.CapPrivileged, &host.PolicyError{Directive: "host-permission", Reason: "host access not granted"}, nil
	default:
		return "", nil, fmt.Errorf("unknown capability %q (want node, sheet, or privileged)", name)
	}
}

func runApply(cmd *cobra.Command, opts *applyOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	store, err := registry.NewDir(opts.dir, logger)
	if err != nil {
		return fmt.Errorf("open style directory: %w", err)
	}

	var memOpts []host.MemOption
	if opts.privileged {
		memOpts = append(memOpts, host.WithPrivileged())
	}
	for _, name := range opts.deny {
		cap, policyErr, err := capabilityFor(name)
		if err != nil {
			return err
		}
		memOpts = append(memOpts, host.WithDenial(cap, policyErr))
	}
	doc := host.NewMemDocument(opts.url, memOpts...)

	engine := delivery.New(delivery.Options{
		Document:   doc,
		Privileged: doc.Privileged(),
		Logger:     logger,
	})
	ctrl, err := page.NewController(page.Options{
		Registry:  store,
		Engine:    engine,
		Document:  doc,
		Navigator: doc,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("page controller: %w", err)
	}
	defer ctrl.Close()

	ctrl.Initialize(ctx)
	engine.Flush(ctx)

	printSession(ctrl, engine)
	prog.done(fmt.Sprintf("Applied %d styles", len(ctrl.AppliedStyles())))

	if !opts.watch {
		return nil
	}

	events, err := store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch style directory: %w", err)
	}
	go ctrl.WatchRegistry(ctx, events)

	printInfo("Watching %s; enter a URL to navigate, ctrl+d to quit", opts.dir)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		url := strings.TrimSpace(scanner.Text())
		if url == "" {
			printSession(ctrl, engine)
			continue
		}
		doc.Navigate(url)
		engine.Flush(ctx)
		printSession(ctrl, engine)
	}
	return scanner.Err()
}

// printSession prints the applied styles and the active strategy.
func printSession(ctrl *page.Controller, engine *delivery.Engine) {
	applied := ctrl.AppliedStyles()

	printNewline()
	printKeyValue("url", ctrl.URL())
	printKeyValue("strategy", string(engine.ActiveStrategy()))
	printKeyValue("applied", fmt.Sprintf("%d", len(applied)))

	names := make([]string, 0, len(applied))
	byName := make(map[string]string, len(applied))
	for id, doc := range applied {
		names = append(names, doc.Name)
		byName[doc.Name] = id
	}
	sort.Strings(names)
	for _, name := range names {
		printStyleLine(name, byName[name], true)
	}
	printNewline()
}
