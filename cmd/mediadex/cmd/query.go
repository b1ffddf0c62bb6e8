package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/output"
	"github.com/Aman-CERP/mediadex/internal/profiling"
)

func newVariantsCmd(opts *globalOptions) *cobra.Command {
	var (
		prefer []string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "variants <source> <name>",
		Short: "Show every style variant of one item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVariants(cmd.Context(), cmd, opts, args[0], args[1], prefer, asJSON)
		},
	}
	cmd.Flags().StringSliceVar(&prefer, "prefer", nil, "Preferred styles, in order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func runVariants(ctx context.Context, cmd *cobra.Command, opts *globalOptions, source, name string, prefer []string, asJSON bool) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	group, err := a.engine.GetVariants(ctx, source, name, prefer)
	if err != nil {
		return err
	}
	if group == nil {
		return mderrors.InvalidInput(fmt.Sprintf("no variants of %q in source %q", name, source)).
			WithSuggestion("names are matched on their canonical form; try 'mediadex search " + name + " --grouped'")
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), group)
	}

	out := output.New(cmd.OutOrStdout())
	out.Header(group.GroupKey())
	out.KeyValue("Styles", strings.Join(group.Styles, ", "))
	out.KeyValue("Default", group.DefaultStyle)
	out.Newline()
	rows := make([][]string, 0, len(group.Items))
	for _, it := range group.Items {
		rows = append(rows, []string{it.Style, it.Path, it.Format, it.LicenseID()})
	}
	out.Table([]string{"STYLE", "PATH", "FORMAT", "LICENSE"}, rows)
	return nil
}

func newSourcesCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List indexed sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.indexer.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats.Sources)
			}

			out := output.New(cmd.OutOrStdout())
			if len(stats.Sources) == 0 {
				out.Status("📭", "Index is empty; run 'mediadex index'")
				return nil
			}
			ids := make([]string, 0, len(stats.Sources))
			for id := range stats.Sources {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []string{id, fmt.Sprint(stats.Sources[id])})
			}
			out.Table([]string{"SOURCE", "ITEMS"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newStylesCmd(opts *globalOptions) *cobra.Command {
	var (
		source string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the distinct styles in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			styles, err := a.engine.ListStyles(cmd.Context(), source)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), styles)
			}
			out := output.New(cmd.OutOrStdout())
			if len(styles) == 0 {
				out.Status("📭", "No styles indexed")
				return nil
			}
			for _, s := range styles {
				fmt.Fprintln(out.Out(), s)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Only styles of this source")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.engine.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			out := output.New(cmd.OutOrStdout())
			out.Header("Index")
			out.KeyValue("Backend", a.backend)
			out.KeyValue("Path", a.cfg.Paths.Index)
			out.KeyValue("Size", profiling.FormatBytes(dirSize(a.cfg.Paths.Index)))
			out.KeyValue("Items", stats.Items)
			out.KeyValue("Groups", stats.Groups)
			out.KeyValue("Sources", len(stats.Sources))
			out.KeyValue("Styles", strings.Join(stats.Styles, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// dirSize sums the sizes of the regular files under dir. Unreadable
// entries are skipped.
func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
