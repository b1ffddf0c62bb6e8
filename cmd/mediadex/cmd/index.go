package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mediadex/internal/catalog"
	"github.com/Aman-CERP/mediadex/internal/output"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var (
		source     string
		catalogDir string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load catalog files into the index",
		Long: `Load the catalog into the persistent index.

Each source's items replace whatever the index held for that source, in
one transaction. Without --source every catalog file is loaded, and
indexed sources whose catalog file is gone are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, opts, source, catalogDir)
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Index only this source")
	cmd.Flags().StringVar(&catalogDir, "catalog", "", "Catalog directory (default: paths.catalog)")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts *globalOptions, source, catalogDir string) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if catalogDir == "" {
		catalogDir = a.cfg.Paths.Catalog
	}
	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	ids := []string{source}
	if source == "" {
		if ids, err = catalog.SourceIDs(catalogDir); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		out.Warningf("No catalog files in %s", catalogDir)
		return nil
	}

	added := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := catalog.LoadSource(catalogDir, id)
		if err != nil {
			return err
		}
		removed, n, err := a.indexer.ReplaceSource(ctx, id, items)
		if err != nil {
			return err
		}
		added += n
		out.Progress(i+1, len(ids), fmt.Sprintf("%s: %d items (%d replaced)", id, n, removed))
	}

	pruned := 0
	if source == "" {
		if pruned, err = pruneSources(ctx, a, ids); err != nil {
			return err
		}
	}

	slog.Info("index_run_completed",
		slog.Int("sources", len(ids)),
		slog.Int("items", added),
		slog.Int("pruned_sources", pruned),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	out.Successf("Indexed %d items from %d sources in %s", added, len(ids), time.Since(start).Round(time.Millisecond))
	if pruned > 0 {
		out.Statusf("🗑", "Removed %d sources without a catalog file", pruned)
	}
	return nil
}

// pruneSources removes indexed sources missing from keep.
func pruneSources(ctx context.Context, a *app, keep []string) (int, error) {
	indexed, err := a.engine.ListSources(ctx)
	if err != nil {
		return 0, err
	}
	present := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		present[id] = struct{}{}
	}
	pruned := 0
	for _, id := range indexed {
		if _, ok := present[id]; ok {
			continue
		}
		if _, err := a.indexer.RemoveSource(ctx, id); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
