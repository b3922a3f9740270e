package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"opsdesk/internal/core/numbering"
)

func newCountersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Inspect and override numbering counters",
	}

	show := &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show the counters of a legal entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.resolveTarget(cmd, args[0])
			if err != nil {
				return err
			}
			counters, err := t.app.LegalEntities.Counters(t.ctx, t.companyID, t.entityID)
			if err != nil {
				return err
			}
			printCounters(cmd, counters)
			return nil
		},
	}

	setNext := &cobra.Command{
		Use:   "set-next <entity-id> <kind> <number>",
		Short: "Set the next number; it must exceed every number already issued",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := numbering.ParseKind(args[1])
			if err != nil {
				return err
			}
			next, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid number %q: %w", args[2], err)
			}
			t, err := c.resolveTarget(cmd, args[0])
			if err != nil {
				return err
			}
			if _, err := t.app.LegalEntities.Get(t.ctx, t.companyID, t.entityID); err != nil {
				return err
			}
			counter, err := t.app.Allocator.SetNextNumber(t.ctx, t.entityID, kind, next)
			if err != nil {
				return err
			}
			printCounters(cmd, []numbering.Counter{counter})
			return nil
		},
	}

	setPrefix := &cobra.Command{
		Use:   "set-prefix <entity-id> <kind> <prefix>",
		Short: "Change the prefix of future numbers",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := numbering.ParseKind(args[1])
			if err != nil {
				return err
			}
			t, err := c.resolveTarget(cmd, args[0])
			if err != nil {
				return err
			}
			if _, err := t.app.LegalEntities.Get(t.ctx, t.companyID, t.entityID); err != nil {
				return err
			}
			counter, err := t.app.Allocator.SetPrefix(t.ctx, t.entityID, kind, args[2])
			if err != nil {
				return err
			}
			printCounters(cmd, []numbering.Counter{counter})
			return nil
		},
	}

	cmd.AddCommand(show, setNext, setPrefix)
	return cmd
}

func printCounters(cmd *cobra.Command, counters []numbering.Counter) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tPREFIX\tNEXT\tHIGHEST ISSUED\tNEXT NUMBER")
	for _, c := range counters {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			c.Kind, c.Prefix, c.NextNumber, c.HighWaterMark, numbering.Format(c.Prefix, c.NextNumber))
	}
	_ = w.Flush()
}
