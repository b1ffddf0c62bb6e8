package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mediadex/internal/catalog"
	"github.com/Aman-CERP/mediadex/internal/config"
	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/export"
	"github.com/Aman-CERP/mediadex/internal/output"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

type exportOptions struct {
	outputDir  string
	catalogDir string
	thumbnails string
	jsonPath   string
	flat       bool
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var eo exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the static prefix-sharded index",
		Long: `Write the static index a browser can query without a server.

Items are read from the catalog files, not from the live index. Every
two-character prefix of an item's names and tags gets a shard file under
search/; prefixes shared by more than export.overflow_threshold items
are dropped and reported.

--json writes the live index to one JSON file instead, grouped by
variant unless --flat is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if eo.jsonPath != "" {
				return runJSONDump(ctx, cmd, opts, eo)
			}
			if eo.flat {
				return mderrors.InvalidInput("--flat requires --json")
			}
			return runExport(ctx, cmd, opts, eo)
		},
	}

	cmd.Flags().StringVarP(&eo.outputDir, "output", "o", "", "Output directory (default: paths.static)")
	cmd.Flags().StringVar(&eo.catalogDir, "catalog", "", "Catalog directory (default: paths.catalog)")
	cmd.Flags().StringVar(&eo.thumbnails, "thumbnails", "", "JSON file mapping item ids to thumbnail URLs")
	cmd.Flags().StringVar(&eo.jsonPath, "json", "", "Write the live index to this JSON file")
	cmd.Flags().BoolVar(&eo.flat, "flat", false, "With --json, list items instead of variant groups")
	return cmd
}

func runExport(ctx context.Context, cmd *cobra.Command, opts *globalOptions, eo exportOptions) error {
	_, cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if eo.outputDir == "" {
		eo.outputDir = cfg.Paths.Static
	}
	if eo.catalogDir == "" {
		eo.catalogDir = cfg.Paths.Catalog
	}
	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	bySource, err := catalog.LoadAll(eo.catalogDir)
	if err != nil {
		return err
	}
	sources, err := catalog.LoadSourceConfigs(cfg.Paths.Configs)
	if err != nil {
		return err
	}
	thumbs, err := catalog.LoadThumbnails(eo.thumbnails)
	if err != nil {
		return err
	}

	b, err := newBuilder(cfg, eo.outputDir)
	if err != nil {
		return err
	}
	stats, err := b.Build(ctx, catalog.Flatten(bySource), sources, thumbs)
	if err != nil {
		return err
	}

	slog.Info("export_run_completed",
		slog.String("output", eo.outputDir),
		slog.Int("items", stats.TotalItems),
		slog.Int("prefix_files", stats.PrefixFiles),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	out.Successf("Exported %d items from %d sources to %s", stats.TotalItems, stats.Sources, eo.outputDir)
	out.KeyValue("Prefix files", stats.PrefixFiles)
	out.KeyValue("Tags", stats.Tags)
	out.KeyValue("Licenses", stats.Licenses)
	if stats.Removed > 0 {
		out.KeyValue("Stale files removed", stats.Removed)
	}
	for _, o := range stats.Overflowed {
		out.Warningf("Prefix %q dropped: %d items exceed the threshold of %d", o.Prefix, o.Count, cfg.Export.OverflowThreshold)
	}
	return nil
}

func runJSONDump(ctx context.Context, cmd *cobra.Command, opts *globalOptions, eo exportOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := os.MkdirAll(filepath.Dir(eo.jsonPath), 0o755); err != nil {
		return mderrors.New(mderrors.ErrCodeExportWrite, "failed to create output directory", err).
			WithDetail("path", eo.jsonPath)
	}
	tmp := eo.jsonPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return mderrors.New(mderrors.ErrCodeExportWrite, "failed to create index dump", err).
			WithDetail("path", eo.jsonPath)
	}
	n, err := a.indexer.ExportJSON(ctx, f, !eo.flat)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = mderrors.New(mderrors.ErrCodeExportWrite, "failed to write index dump", cerr)
	}
	if err == nil {
		err = os.Rename(tmp, eo.jsonPath)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	unit := "groups"
	if eo.flat {
		unit = "items"
	}
	output.New(cmd.OutOrStdout()).Successf("Exported %d %s to %s", n, unit, eo.jsonPath)
	return nil
}

func newBuilder(cfg *config.Config, dir string) (*export.Builder, error) {
	return export.NewBuilder(export.Options{
		OutputDir:         dir,
		OverflowThreshold: cfg.Export.OverflowThreshold,
		Workers:           cfg.Export.Workers,
		MaxTags:           cfg.Export.MaxTags,
		Logger:            slog.Default(),
		Metrics:           telemetry.NewMetrics(prometheus.NewRegistry()),
	})
}
