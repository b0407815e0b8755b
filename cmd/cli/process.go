package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/statement"
)

type processFlags struct {
	BatchID string
	Out     string
}

func newProcessCmd(c *cli) *cobra.Command {
	flags := &processFlags{}

	cmd := &cobra.Command{
		Use:   "process <statement>",
		Short: "Deduplicate and match statement rows without writing them",
		Long: `Read a JSON or CSV statement (local path or gs://bucket/object), drop rows
already in the ledger and resolve every remaining row to an entity.
The result can be saved with --out and imported later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			txs, err := statement.Load(ctx, statement.SourceFetcher{}, args[0])
			if err != nil {
				return err
			}
			pterm.Info.Printfln("Read %s from %s", plural(len(txs), "row"), args[0])

			application, err := app.New(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			obs := &barObserver{}
			result, err := application.Service.Process(ctx, flags.BatchID, txs, obs)
			obs.Stop()
			if result != nil {
				renderProcessResult(result)
			}
			if err != nil {
				return fmt.Errorf("processing aborted: %w", err)
			}

			if flags.Out != "" {
				if err := writeJSON(flags.Out, result); err != nil {
					return err
				}
				pterm.Success.Printfln("Saved result to %s", flags.Out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.BatchID, "batch-id", "", "batch id to use (generated when empty)")
	cmd.Flags().StringVarP(&flags.Out, "out", "o", "", "write the process result as JSON to this file")

	return cmd
}

func renderProcessResult(result *domain.ProcessResult) {
	pterm.DefaultSection.Printfln("Batch %s", result.BatchID)

	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Total", "Matched", "Uncertain", "Failed", "Skipped"},
		{
			fmt.Sprint(result.Total),
			pterm.Green(len(result.Matched)),
			pterm.Yellow(len(result.Uncertain)),
			pterm.Red(len(result.Failed)),
			pterm.Gray(len(result.Skipped)),
		},
	}).Render()

	for _, w := range result.Warnings {
		pterm.Warning.Printfln("%s: %s", w.Type, w.Message)
	}

	if len(result.Uncertain) > 0 {
		data := pterm.TableData{{"Date", "Description", "Amount", "Suggested entity", "Via"}}
		for _, tx := range result.Uncertain {
			data = append(data, []string{tx.Date, tx.Description, tx.Amount.StringFixed(2), entityName(tx.Entity), matchType(tx.Entity)})
		}
		pterm.DefaultSection.WithLevel(2).Println("Needs review")
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	if len(result.Failed) > 0 {
		data := pterm.TableData{{"Date", "Description", "Amount", "Error"}}
		for _, tx := range result.Failed {
			data = append(data, []string{tx.Date, tx.Description, tx.Amount.StringFixed(2), tx.Error})
		}
		pterm.DefaultSection.WithLevel(2).Println("Failed")
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	if ai := result.AIUsage; ai.APICalls > 0 || ai.CacheHits > 0 {
		pterm.Info.Printfln("AI: %s, %s, $%.4f", plural(ai.APICalls, "call"), plural(ai.CacheHits, "cache hit"), ai.TotalCostUSD)
	}
}

func entityName(e *domain.EntityInfo) string {
	if e == nil {
		return ""
	}
	return e.EntityName
}

func matchType(e *domain.EntityInfo) string {
	if e == nil {
		return ""
	}
	if e.Confidence != nil {
		return fmt.Sprintf("%s (%.2f)", e.MatchType, *e.Confidence)
	}
	return string(e.MatchType)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
