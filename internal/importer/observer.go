package importer

// Step names reported to an Observer.
const (
	StepDeduplicating   = "deduplicating"
	StepLoadingEntities = "loading entities"
	StepMatching        = "matching"
	StepImporting       = "importing"
)

// Observer receives progress notifications from the processor and executor.
// Implementations must not block and must be safe for concurrent use; the
// executor calls them from several workers.
type Observer interface {
	// OnStep marks the start of a pipeline step over total items.
	OnStep(step string, total int)
	// OnItem reports an item that has started.
	OnItem(summary string)
	// OnItemDone reports a finished item. errMsg is empty on success.
	OnItemDone(summary string, errMsg string)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) OnStep(string, int)        {}
func (NopObserver) OnItem(string)             {}
func (NopObserver) OnItemDone(string, string) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
