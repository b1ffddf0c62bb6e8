package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mediadex/internal/catalog"
	"github.com/Aman-CERP/mediadex/internal/output"
	"github.com/Aman-CERP/mediadex/internal/watcher"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var forcePolling bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reindex sources as their catalog files change",
		Long: `Watch the catalog directory and keep the index in step with it.

A changed <source>.json replaces that source in the index; a deleted one
removes it. A file that fails to load leaves the indexed source as it was.
Changes are debounced by watch.debounce.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, opts, forcePolling)
		},
	}
	cmd.Flags().BoolVar(&forcePolling, "poll", false, "Poll instead of using filesystem notifications")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *globalOptions, forcePolling bool) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: a.cfg.DebounceDuration(),
		Filter:         catalog.IsItemFile,
		ForcePolling:   forcePolling,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(ctx, a.cfg.Paths.Catalog)
	}()

	out := output.New(cmd.OutOrStdout())
	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", a.cfg.Paths.Catalog)

	cs := watcher.NewCatalogSync(a.cfg.Paths.Catalog, a.indexer, a.logger)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			a.logger.Warn("watch_error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, res := range cs.Apply(ctx, batch) {
				switch res.Action {
				case watcher.SyncReplaced:
					out.Successf("%s: %d items (%d replaced)", res.SourceID, res.Added, res.Removed)
				case watcher.SyncRemoved:
					out.Statusf("🗑", "%s: removed %d items", res.SourceID, res.Removed)
				case watcher.SyncFailed:
					out.Errorf("%s: %v", res.SourceID, res.Err)
				}
			}
			a.engine.PurgeCache()
		}
	}
}
