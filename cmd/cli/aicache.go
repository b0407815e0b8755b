package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/app"
)

func newAICacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai-cache",
		Short: "Manage cached AI suggestions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached AI suggestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.AI.CachePath == "" {
				pterm.Info.Println("AI cache is in-memory only; nothing to clear.")
				return nil
			}

			cache, closeCache, err := app.OpenCache(c.cfg)
			if err != nil {
				return err
			}
			defer closeCache()

			if err := cache.Clear(cmd.Context()); err != nil {
				return err
			}
			pterm.Success.Printfln("Cleared AI cache at %s", c.cfg.AI.CachePath)
			return nil
		},
	})

	return cmd
}
