package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-import/internal/app"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/importer"
)

type importFlags struct {
	IncludeUncertain bool
	Yes              bool
	Out              string
}

type importRunner struct {
	cli   *cli
	flags *importFlags
}

func newImportCmd(c *cli) *cobra.Command {
	flags := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import <process-result.json>",
		Short: "Write the matched rows of a process result to the ledger",
		Long: `Confirm the rows of a saved process result and write them to the Notion
balance sheet. Matched rows are always imported; uncertain rows only with
--include-uncertain, which also records each accepted suggestion as a correction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &importRunner{cli: c, flags: flags}
			return runner.Run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&flags.IncludeUncertain, "include-uncertain", false, "also import uncertain rows with their suggested entity")
	cmd.Flags().BoolVarP(&flags.Yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().StringVarP(&flags.Out, "out", "o", "", "write the execute result as JSON to this file")

	return cmd
}

func (r *importRunner) Run(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()

	var processed domain.ProcessResult
	if err := readJSON(path, &processed); err != nil {
		return err
	}

	confirmed := Confirm(&processed, r.flags.IncludeUncertain)
	if len(confirmed) == 0 {
		pterm.Info.Println("Nothing to import")
		return nil
	}

	if !r.flags.Yes {
		ok, err := pterm.DefaultInteractiveConfirm.Show(fmt.Sprintf("Import %s into the ledger?", plural(len(confirmed), "transaction")))
		if err != nil {
			return err
		}
		if !ok {
			pterm.Info.Println("Import cancelled")
			return nil
		}
	}

	application, err := app.New(ctx, r.cli.cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	obs := &barObserver{}
	result := application.Service.Execute(ctx, processed.BatchID, confirmed, obs)
	obs.Stop()

	renderExecuteResult(result)

	if r.flags.IncludeUncertain {
		saved := 0
		for _, res := range result.Results {
			if !res.Success || res.Transaction.Status != domain.StatusUncertain || res.Transaction.Entity == nil {
				continue
			}
			e := res.Transaction.Entity
			if _, err := application.Store.SaveCorrection(ctx, res.Transaction.Description, e.EntityID, e.EntityName, importer.CorrectionMatchedConfidence); err != nil {
				pterm.Warning.Printfln("Failed to save correction for %q: %v", res.Transaction.Description, err)
				continue
			}
			saved++
		}
		if saved > 0 {
			pterm.Info.Printfln("Recorded %s", plural(saved, "correction"))
		}
	}

	if r.flags.Out != "" {
		if err := writeJSON(r.flags.Out, result); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("import interrupted: %d not attempted", result.Skipped)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%s failed", plural(len(result.Failed), "transaction"))
	}
	return nil
}

// Confirm turns the matched (and optionally uncertain) rows of a process
// result into ledger writes, with the kind inferred from the amount sign.
// Uncertain rows without a suggested entity are left out.
func Confirm(result *domain.ProcessResult, includeUncertain bool) []domain.ConfirmedTransaction {
	rows := append([]domain.ProcessedTransaction(nil), result.Matched...)
	if includeUncertain {
		for _, tx := range result.Uncertain {
			if tx.Entity != nil && tx.Entity.EntityName != "" {
				rows = append(rows, tx)
			}
		}
	}

	confirmed := make([]domain.ConfirmedTransaction, 0, len(rows))
	for _, tx := range rows {
		confirmed = append(confirmed, domain.ConfirmedTransaction{
			ProcessedTransaction: tx,
			Kind:                 domain.KindForAmount(tx.Amount),
		})
	}
	return confirmed
}

func renderExecuteResult(result *domain.ExecuteResult) {
	pterm.DefaultSection.Printfln("Batch %s", result.BatchID)

	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Imported", "Failed", "Skipped"},
		{pterm.Green(result.Imported), pterm.Red(len(result.Failed)), pterm.Gray(result.Skipped)},
	}).Render()

	if len(result.Failed) > 0 {
		data := pterm.TableData{{"Date", "Description", "Amount", "Error"}}
		for _, f := range result.Failed {
			tx := f.Transaction
			data = append(data, []string{tx.Date, tx.Description, tx.Amount.StringFixed(2), f.Error})
		}
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
}
