package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/KiKaraage/eastyles-sub002/internal/server"
	"github.com/KiKaraage/eastyles-sub002/pkg/registry"
)

// serveOpts holds the command-line flags for the serve command.
type serveOpts struct {
	addr      string // listen address
	dir       string // style directory backend
	redisAddr string // redis backend address, overrides --styles
	redisDB   int    // redis database number
}

// newServeCmd creates the serve command, which exposes a style registry
// over HTTP.
func newServeCmd() *cobra.Command {
	opts := &serveOpts{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose a style registry over HTTP",
		Long: `Serve runs the style registry API. Styles can be listed (optionally
filtered by page URL), fetched, installed, and removed, and connected
clients can follow update/remove notifications on /api/events.

The backend is a style directory by default; with --redis the registry
is stored in Redis and notifications travel over pub/sub, so multiple
serve instances stay in sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", ":8972", "listen address")
	cmd.Flags().StringVarP(&opts.dir, "styles", "s", ".", "directory of style documents")
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "", "redis address (e.g. localhost:6379)")
	cmd.Flags().IntVar(&opts.redisDB, "redis-db", 0, "redis database number")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	var store registry.Store
	if opts.redisAddr != "" {
		rs, err := registry.NewRedisStore(ctx, registry.RedisConfig{
			Addr:   opts.redisAddr,
			DB:     opts.redisDB,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rs.Close()
		store = rs
		printInfo("Registry backend: redis %s", opts.redisAddr)
	} else {
		ds, err := registry.NewDir(opts.dir, logger)
		if err != nil {
			return fmt.Errorf("open style directory: %w", err)
		}
		store = ds
		printInfo("Registry backend: %s", opts.dir)
	}

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           server.New(store, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", opts.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
