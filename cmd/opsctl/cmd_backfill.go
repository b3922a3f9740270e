package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBackfillCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Raise counters past numbers found on stored documents",
		Long: `Backfill scans the documents of every legal entity of the company and
raises each counter so it never re-issues a number already in use. Run it
once after importing documents numbered under the company-level scheme.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, companyID, err := c.companyContext(cmd.Context())
			if err != nil {
				return err
			}
			a, err := c.application(ctx)
			if err != nil {
				return err
			}
			results, err := a.Backfiller.Run(ctx, companyID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tKIND\tSCANNED\tSKIPPED\tHIGHEST\tNEXT\tCHANGED")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%t\n",
					r.Key.LegalEntityID, r.Key.Kind, r.Scanned, r.Skipped, r.Highest, r.Counter.NextNumber, r.Changed)
			}
			return w.Flush()
		},
	}
	return cmd
}
