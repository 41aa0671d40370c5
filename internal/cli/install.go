package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/KiKaraage/eastyles-sub002/pkg/httputil"
	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// installOpts holds the command-line flags for the install command.
type installOpts struct {
	dir      string // style directory
	cacheDir string // response cache directory
	refresh  bool   // bypass the response cache
	disabled bool   // install without enabling
}

// newInstallCmd creates the install command, which downloads a style
// document into the style directory.
func newInstallCmd() *cobra.Command {
	opts := &installOpts{}

	cmd := &cobra.Command{
		Use:   "install <url>",
		Short: "Download a style document into the style directory",
		Long: `Install fetches a style document from a URL, validates it, and saves it
into the style directory. Responses are cached on disk, so reinstalling
a recently fetched style skips the network; --refresh forces a fresh
download. Transient server errors are retried with backoff.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "styles", "s", ".", "directory of style documents")
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "response cache directory (default ~/.cache/eastyles)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass the response cache")
	cmd.Flags().BoolVar(&opts.disabled, "disabled", false, "install the style disabled")
	return cmd
}

func runInstall(cmd *cobra.Command, url string, opts *installOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	var cache *httputil.Cache
	if !opts.refresh {
		var err error
		cache, err = httputil.NewCache(opts.cacheDir, 24*time.Hour)
		if err != nil {
			logger.Warn("response cache disabled", "err", err)
		}
	}

	doc, err := httputil.NewFetcher(cache, logger).FetchStyle(ctx, url)
	if err != nil {
		return err
	}
	doc.Enabled = !opts.disabled

	path := filepath.Join(opts.dir, doc.ID+style.FileExt)
	if err := style.Save(path, doc); err != nil {
		return fmt.Errorf("save style: %w", err)
	}

	printSuccess("Installed %s", doc.Name)
	printFile(path)
	printKeyValue("id", doc.ID)
	printKeyValue("rules", fmt.Sprintf("%d", len(doc.Rules)))
	if n := len(doc.Variables); n > 0 {
		printKeyValue("variables", fmt.Sprintf("%d", n))
	}
	prog.done("Install complete")
	printNextStep("Check where it applies", "eastyles check <url> --styles "+opts.dir)
	return nil
}
