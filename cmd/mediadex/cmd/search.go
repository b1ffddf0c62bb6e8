package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/export"
	"github.com/Aman-CERP/mediadex/internal/output"
	"github.com/Aman-CERP/mediadex/internal/search"
)

// Search modes.
const (
	modeIndex  = "index"
	modeStatic = "static"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	grouped bool
	byName  bool
	source  string
	tags    []string
	formats []string
	styles  []string
	prefer  []string
	limit   int
	offset  int
	mode    string
	json    bool
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var so searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed media",
		Long: `Search media by name, tags and description.

--mode index (default) queries the persistent index with ranking and
every filter. --mode static answers from the exported prefix shards the
way a browser client would: substring matching on names and tags, with
only --source and --limit applied.

--name treats the query as a fragment of the canonical name, matched
ignoring case, with only --source, one --style and --limit applied.

Examples:
  mediadex search "arrow right"
  mediadex search bus --grouped --prefer solid
  mediadex search flag --source flags --tag europe --json
  mediadex search us --mode static
  mediadex search row --name --style solid`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, opts, strings.Join(args, " "), so)
		},
	}

	cmd.Flags().BoolVarP(&so.grouped, "grouped", "g", false, "Collapse style variants into groups")
	cmd.Flags().BoolVar(&so.byName, "name", false, "Match the query against canonical names only")
	cmd.Flags().StringVarP(&so.source, "source", "s", "", "Restrict to one source")
	cmd.Flags().StringSliceVarP(&so.tags, "tag", "t", nil, "Tag substring filter (repeatable)")
	cmd.Flags().StringSliceVar(&so.formats, "format", nil, "File format filter, e.g. svg (repeatable)")
	cmd.Flags().StringSliceVar(&so.styles, "style", nil, "Style filter (repeatable)")
	cmd.Flags().StringSliceVar(&so.prefer, "prefer", nil, "Preferred styles for grouped results, in order")
	cmd.Flags().IntVarP(&so.limit, "limit", "n", 0, "Maximum number of results (default: search.default_limit)")
	cmd.Flags().IntVar(&so.offset, "offset", 0, "Number of results to skip")
	cmd.Flags().StringVar(&so.mode, "mode", modeIndex, "Search mode: index or static")
	cmd.Flags().BoolVar(&so.json, "json", false, "Output as JSON")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts *globalOptions, query string, so searchOptions) error {
	switch so.mode {
	case modeIndex:
		if so.byName {
			return runNameSearch(ctx, cmd, opts, query, so)
		}
		return runIndexSearch(ctx, cmd, opts, query, so)
	case modeStatic:
		return runStaticSearch(cmd, opts, query, so)
	default:
		return mderrors.InvalidInput(fmt.Sprintf("unknown search mode: %s (valid: index, static)", so.mode))
	}
}

func (so searchOptions) engineOptions() search.SearchOptions {
	return search.SearchOptions{
		Limit:       so.limit,
		Offset:      so.offset,
		SourceID:    so.source,
		Tags:        so.tags,
		Formats:     so.formats,
		Styles:      so.styles,
		Preferences: so.prefer,
	}
}

func runIndexSearch(ctx context.Context, cmd *cobra.Command, opts *globalOptions, query string, so searchOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := output.New(cmd.OutOrStdout())
	if so.grouped {
		groups, err := a.engine.SearchGrouped(ctx, query, so.engineOptions())
		if err != nil {
			return err
		}
		if so.json {
			return writeJSON(cmd.OutOrStdout(), groups)
		}
		printGroups(out, query, groups)
		return nil
	}

	results, err := a.engine.Search(ctx, query, so.engineOptions())
	if err != nil {
		return err
	}
	if so.json {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	printResults(out, query, results)
	return nil
}

func runNameSearch(ctx context.Context, cmd *cobra.Command, opts *globalOptions, query string, so searchOptions) error {
	if so.grouped || len(so.tags) > 0 || len(so.formats) > 0 || len(so.styles) > 1 || so.offset != 0 {
		return mderrors.InvalidInput("--grouped, --tag, --format, --offset and repeated --style are not supported with --name")
	}
	var style string
	if len(so.styles) == 1 {
		style = so.styles[0]
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.engine.SearchByName(ctx, query, so.source, style, so.limit)
	if err != nil {
		return err
	}
	if so.json {
		return writeJSON(cmd.OutOrStdout(), items)
	}
	out := output.New(cmd.OutOrStdout())
	if len(items) == 0 {
		out.Statusf("🔍", "No media named like %q", query)
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.ID(), it.Canonical(), it.SourceID, it.Style, it.Format, it.Path})
	}
	out.Table([]string{"ID", "NAME", "SOURCE", "STYLE", "FORMAT", "PATH"}, rows)
	return nil
}

func runStaticSearch(cmd *cobra.Command, opts *globalOptions, query string, so searchOptions) error {
	if so.byName || len(so.tags) > 0 || len(so.formats) > 0 || len(so.styles) > 0 || so.offset != 0 {
		return mderrors.InvalidInput("--name, --tag, --format, --style and --offset are not supported with --mode static")
	}
	if so.limit < 0 {
		return mderrors.InvalidLimit("limit must not be negative")
	}
	_, cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	m, err := export.OpenMatcher(cfg.Paths.Static, export.MatcherOptions{})
	if err != nil {
		return err
	}

	f := export.MatchFilter{Limit: so.limit}
	if so.source != "" {
		f.IncludeSources = []string{so.source}
	}
	out := output.New(cmd.OutOrStdout())

	if so.grouped {
		prefs := so.prefer
		if prefs == nil {
			prefs = cfg.Search.PreferredStyles
		}
		groups, err := m.MatchGrouped(query, f, prefs)
		if err != nil {
			return err
		}
		if so.json {
			return writeJSON(cmd.OutOrStdout(), groups)
		}
		printRecordGroups(out, query, groups)
		return nil
	}

	result, err := m.Match(query, f)
	if err != nil {
		return err
	}
	if so.json {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printRecords(out, result)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(out *output.Writer, query string, results []*search.Result) {
	if len(results) == 0 {
		out.Statusf("🔍", "No media found for %q", query)
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		it := r.Item
		rows = append(rows, []string{
			it.ID(), it.Name, it.SourceID, it.Style, it.Format,
			strings.Join(it.Tags, " "), fmt.Sprintf("%.2f", r.Score),
		})
	}
	out.Table([]string{"ID", "NAME", "SOURCE", "STYLE", "FORMAT", "TAGS", "SCORE"}, rows)
}

func printGroups(out *output.Writer, query string, groups []*search.GroupResult) {
	if len(groups) == 0 {
		out.Statusf("🔍", "No media found for %q", query)
		return
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.SourceID, g.CanonicalName, strings.Join(g.Styles, ","), g.DefaultStyle,
			fmt.Sprint(len(g.Items)), fmt.Sprintf("%.2f", g.Score),
		})
	}
	out.Table([]string{"SOURCE", "NAME", "STYLES", "DEFAULT", "VARIANTS", "SCORE"}, rows)
}

func printRecords(out *output.Writer, result *export.MatchResult) {
	if result.Overflowed {
		out.Warningf("Prefix %q was too common to export; use a longer or rarer query start", result.Prefix)
		return
	}
	if len(result.Records) == 0 {
		out.Statusf("🔍", "No media found for %q", result.Query)
		return
	}
	rows := make([][]string, 0, len(result.Records))
	for _, r := range result.Records {
		rows = append(rows, []string{r.ID, r.Name, r.Source, r.Style, strings.Join(r.Tags, " "), r.License})
	}
	out.Table([]string{"ID", "NAME", "SOURCE", "STYLE", "TAGS", "LICENSE"}, rows)
}

func printRecordGroups(out *output.Writer, query string, groups []*export.RecordGroup) {
	if len(groups) == 0 {
		out.Statusf("🔍", "No media found for %q", query)
		return
	}
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{
			g.SourceID, g.Name, strings.Join(g.Styles, ","), g.DefaultStyle, fmt.Sprint(len(g.Records)),
		})
	}
	out.Table([]string{"SOURCE", "NAME", "STYLES", "DEFAULT", "VARIANTS"}, rows)
}
