package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/store"
)

func newEntitiesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Manage the local entity cache",
	}

	cmd.AddCommand(newEntitiesSeedCmd(c))
	cmd.AddCommand(newEntitiesRefreshCmd(c))
	cmd.AddCommand(newEntitiesListCmd(c))

	return cmd
}

func newEntitiesSeedCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load entities from a YAML seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			entities, err := store.ReadEntitySeed(f)
			if err != nil {
				return err
			}

			st, err := store.Open(c.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.SeedEntities(cmd.Context(), entities)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Seeded %s", plural(n, "entity"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "entities.yaml", "seed file path")

	return cmd
}

func newEntitiesRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Pull every entity from the Notion entities database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := app.OpenLedger(c.cfg)
			if err != nil {
				return err
			}

			spinner, _ := pterm.DefaultSpinner.Start("Fetching entities from Notion")
			pages, err := client.ListEntities(ctx)
			if err != nil {
				spinner.Fail("Fetch failed")
				return err
			}
			spinner.Success(fmt.Sprintf("Fetched %s", plural(len(pages), "entity")))

			entities := make([]store.Entity, 0, len(pages))
			for _, p := range pages {
				entities = append(entities, store.Entity{ID: p.ID, Name: p.Name, Aliases: p.Aliases, URL: p.URL})
			}

			st, err := store.Open(c.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.SeedEntities(ctx, entities)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Cached %s", plural(n, "entity"))
			return nil
		},
	}
}

func newEntitiesListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show cached entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(c.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			entities, err := st.ListEntities(cmd.Context())
			if err != nil {
				return err
			}
			if len(entities) == 0 {
				pterm.Warning.Println("No entities cached. Run `ledger-import entities refresh` first.")
				return nil
			}

			data := pterm.TableData{{"Name", "Aliases", "ID"}}
			for _, e := range entities {
				data = append(data, []string{e.Name, e.Aliases, e.ID})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
}
