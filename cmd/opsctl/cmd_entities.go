package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"opsdesk/internal/domain/legalentity"
)

func newEntitiesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entities",
		Aliases: []string{"le"},
		Short:   "Manage the company's legal entities",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List legal entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, companyID, err := c.companyContext(cmd.Context())
			if err != nil {
				return err
			}
			a, err := c.application(ctx)
			if err != nil {
				return err
			}
			entities, err := a.LegalEntities.List(ctx, companyID)
			if err != nil {
				return err
			}
			printEntities(cmd, entities)
			return nil
		},
	}

	var (
		name      string
		isDefault bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a legal entity with default counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, companyID, err := c.companyContext(cmd.Context())
			if err != nil {
				return err
			}
			a, err := c.application(ctx)
			if err != nil {
				return err
			}
			e, err := a.LegalEntities.Create(ctx, legalentity.CreateInput{
				CompanyID:   companyID,
				DisplayName: name,
				IsDefault:   isDefault,
			})
			if err != nil {
				return err
			}
			printEntities(cmd, []*legalentity.LegalEntity{e})
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().BoolVar(&isDefault, "default", false, "make the new entity the company default")
	_ = create.MarkFlagRequired("name")

	setDefault := &cobra.Command{
		Use:   "set-default <entity-id>",
		Short: "Make a legal entity the company default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.resolveTarget(cmd, args[0])
			if err != nil {
				return err
			}
			e, err := t.app.LegalEntities.SetDefault(t.ctx, t.companyID, t.entityID)
			if err != nil {
				return err
			}
			printEntities(cmd, []*legalentity.LegalEntity{e})
			return nil
		},
	}

	archive := &cobra.Command{
		Use:   "archive <entity-id>",
		Short: "Archive a legal entity; its counters are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.resolveTarget(cmd, args[0])
			if err != nil {
				return err
			}
			e, err := t.app.LegalEntities.Archive(t.ctx, t.companyID, t.entityID)
			if err != nil {
				return err
			}
			printEntities(cmd, []*legalentity.LegalEntity{e})
			return nil
		},
	}

	cmd.AddCommand(list, create, setDefault, archive)
	return cmd
}

func printEntities(cmd *cobra.Command, entities []*legalentity.LegalEntity) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tDEFAULT")
	for _, e := range entities {
		def := ""
		if e.IsDefault {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.DisplayName, e.Status, def)
	}
	_ = w.Flush()
}
