// Package cmd provides the CLI commands for mediadex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/logging"
	"github.com/Aman-CERP/mediadex/internal/profiling"
	"github.com/Aman-CERP/mediadex/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dir     string
	debug   bool
	logFile string
	profile profiling.Options
}

// NewRootCmd creates the root command for the mediadex CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	var (
		loggingCleanup func()
		profiler       *profiling.Session
	)

	cmd := &cobra.Command{
		Use:   "mediadex",
		Short: "Index and search media catalogs",
		Long: `mediadex indexes media catalogs (icons, emoji, flags, images) into a
local full-text index, answers queries over it, and exports a static
prefix-sharded index that browsers can query without a server.

Catalog files live in <catalog>/<source>.json, one per source. Run
'mediadex index' to load them, then 'mediadex search <query>'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.profile.Enabled() {
				var err error
				if profiler, err = profiling.Start(opts.profile); err != nil {
					return err
				}
			}
			// serve installs its own file-only logger.
			if cmd.Name() == "serve" {
				return nil
			}
			level := "info"
			if opts.debug {
				level = "debug"
			}
			cfg := logging.Config{Level: level, FilePath: opts.logFile, MaxSizeMB: 10, MaxFiles: 5}
			if cfg.FilePath == "" {
				cfg.FilePath = logging.DefaultLogPath()
			}
			logger, cleanup, err := logging.Setup(cfg)
			if err != nil {
				// A read-only home must not break the CLI.
				return nil
			}
			prev := slog.Default()
			loggingCleanup = func() {
				slog.SetDefault(prev)
				cleanup()
			}
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if loggingCleanup != nil {
				loggingCleanup()
				loggingCleanup = nil
			}
			return profiler.Stop()
		},
	}

	cmd.SetVersionTemplate("mediadex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", "", "Project directory (default: nearest directory with .mediadex.yaml or .git)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Log file (default: ~/.mediadex/logs/mediadex.log)")
	cmd.PersistentFlags().StringVar(&opts.profile.CPUProfile, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&opts.profile.MemProfile, "memprofile", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "trace", "", "Write an execution trace to this file")
	_ = cmd.PersistentFlags().MarkHidden("trace")

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newVariantsCmd(opts))
	cmd.AddCommand(newSourcesCmd(opts))
	cmd.AddCommand(newStylesCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newClearCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failing command's error.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, mderrors.FormatForCLI(err))
	}
	return err
}
