package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mediadex/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
}

func newLogsCmd() *cobra.Command {
	var lo logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View mediadex logs",
		Long: `Show the last lines of the mediadex log, optionally following it.

Examples:
  mediadex logs               # last 50 lines
  mediadex logs -f            # follow new entries
  mediadex logs --level warn  # warnings and errors only
  mediadex logs --filter index_source`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, lo)
		},
	}

	cmd.Flags().BoolVarP(&lo.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lo.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&lo.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&lo.filter, "filter", "", "Only lines matching this regex")
	cmd.Flags().BoolVar(&lo.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&lo.file, "file", "", "Log file (default: ~/.mediadex/logs/mediadex.log)")
	return cmd
}

func runLogs(cmd *cobra.Command, lo logsOptions) error {
	path, err := logging.FindLogFile(lo.file)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if lo.filter != "" {
		if pattern, err = regexp.Compile(lo.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   lo.level,
		Pattern: pattern,
		NoColor: lo.noColor,
	}, cmd.OutOrStdout())

	entries, err := viewer.Tail(path, lo.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)
	if !lo.follow {
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)\n", path)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := make(chan logging.LogEntry, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, ch)
	}()
	for {
		select {
		case e := <-ch:
			fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(e))
		case err := <-errCh:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
