package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/importer"
	"github.com/dvloznov/ledger-import/internal/store"
)

func newCorrectionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Manage learned description to entity corrections",
	}

	cmd.AddCommand(newCorrectionsAddCmd(c))

	return cmd
}

func newCorrectionsAddCmd(c *cli) *cobra.Command {
	var confidence float64

	cmd := &cobra.Command{
		Use:   "add <description> <entity-name>",
		Short: "Map a statement description to a cached entity",
		Long: `Record that rows whose description starts with <description> belong to
<entity-name>. Corrections at or above 0.9 confidence are applied without
review; lower ones mark the row uncertain.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if confidence < importer.CorrectionThreshold || confidence > 1 {
				return fmt.Errorf("confidence must be between %.1f and 1", importer.CorrectionThreshold)
			}

			st, err := store.Open(c.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			entities, err := st.ListEntities(ctx)
			if err != nil {
				return err
			}
			entity, err := findEntity(entities, args[1])
			if err != nil {
				return err
			}

			correction, err := st.SaveCorrection(ctx, args[0], entity.ID, entity.Name, confidence)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("%q -> %s (confidence %.2f)", correction.Pattern, correction.EntityName, correction.Confidence)
			return nil
		},
	}

	cmd.Flags().Float64Var(&confidence, "confidence", 0.95, "correction confidence")

	return cmd
}

// findEntity resolves name against cached entities, ignoring case.
func findEntity(entities []store.Entity, name string) (store.Entity, error) {
	name = strings.TrimSpace(name)
	for _, e := range entities {
		if strings.EqualFold(e.Name, name) {
			return e, nil
		}
	}
	return store.Entity{}, fmt.Errorf("entity %q is not cached; run `ledger-import entities refresh` or seed it first", name)
}
