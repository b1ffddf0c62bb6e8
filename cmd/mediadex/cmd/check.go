package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/index"
	"github.com/Aman-CERP/mediadex/internal/output"
)

// maxListedIssues caps the inconsistencies printed by check.
const maxListedIssues = 20

func newCheckCmd(opts *globalOptions) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the record store and text index agree",
		Long: `Compare the item records with the full-text index.

An item missing from the text index cannot be found by search; a text
entry without a record is an orphan. --repair rebuilds the text index
from the records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())
			checker := index.NewConsistencyChecker(a.store, a.logger)

			result, err := checker.Check(ctx)
			if err != nil {
				return err
			}
			if result.Consistent() {
				out.Successf("Index consistent (%d items checked)", result.Checked)
				return nil
			}

			out.Warningf("%d inconsistencies in %d items", len(result.Inconsistencies), result.Checked)
			for i, issue := range result.Inconsistencies {
				if i == maxListedIssues {
					out.Statusf("", "  ... and %d more", len(result.Inconsistencies)-i)
					break
				}
				out.Statusf("", "  %s %s", issue.Type, issue.ItemID)
			}

			if !repair {
				return mderrors.New(mderrors.ErrCodeCorruptIndex,
					fmt.Sprintf("text index diverges from records in %d items", len(result.Inconsistencies)), nil).
					WithSuggestion("run 'mediadex check --repair'")
			}
			if err := checker.Repair(ctx, result.Inconsistencies); err != nil {
				return err
			}
			a.engine.PurgeCache()
			out.Success("Text index rebuilt")
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Rebuild the text index when inconsistent")
	return cmd
}
