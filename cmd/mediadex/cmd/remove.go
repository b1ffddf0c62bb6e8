package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mediadex/internal/output"
)

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source>",
		Short: "Remove one source from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.indexer.RemoveSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if n == 0 {
				out.Warningf("Source %q is not indexed", args[0])
				return nil
			}
			out.Successf("Removed %d items of %s", n, args[0])
			return nil
		},
	}
}

func newClearCmd(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every item from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if !yes {
				out.Warning("This removes every indexed item; rerun with --yes to confirm")
				return nil
			}
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.indexer.Clear(cmd.Context()); err != nil {
				return err
			}
			out.Success("Index cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm clearing the index")
	return cmd
}
