package smartdelay

// FlushReason records what closed a batch.
type FlushReason string

const (
	FlushTimer     FlushReason = "timer"
	FlushImmediate FlushReason = "immediate"
	FlushMaxDelay  FlushReason = "max_delay"
	FlushManual    FlushReason = "manual"
)

// Observer is notified of scheduler activity. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	FragmentClassified(category Category)
	BatchDispatched(reason FlushReason, batch Batch, err error)
}

type nopObserver struct{}

func (nopObserver) FragmentClassified(Category) {}

func (nopObserver) BatchDispatched(FlushReason, Batch, error) {}
