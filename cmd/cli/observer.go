package main

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/dvloznov/ledger-import/internal/importer"
)

// barObserver renders importer progress as one pterm progress bar per step.
type barObserver struct {
	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
}

func (o *barObserver) OnStep(step string, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked()
	if total <= 0 {
		pterm.Info.Println(capitalize(step))
		return
	}
	bar, err := pterm.DefaultProgressbar.WithTotal(total).WithTitle(capitalize(step)).Start()
	if err != nil {
		return
	}
	o.bar = bar
}

func (o *barObserver) OnItem(summary string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar != nil {
		o.bar.UpdateTitle(summary)
	}
}

func (o *barObserver) OnItemDone(summary string, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if errMsg != "" {
		pterm.Warning.Printfln("%s: %s", summary, errMsg)
	}
	if o.bar != nil {
		o.bar.Increment()
	}
}

// Stop removes the active bar.
func (o *barObserver) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

func (o *barObserver) stopLocked() {
	if o.bar != nil {
		_, _ = o.bar.Stop()
		o.bar = nil
	}
}

var _ importer.Observer = (*barObserver)(nil)
