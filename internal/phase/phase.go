package phase

// Phase names one category of per-frame work.
type Phase int

const (
	Update Phase = iota
	FixedUpdate
	LateUpdate
	// MainThreadUpdate is the background pre-dispatch hook run on the frame goroutine.
	MainThreadUpdate
	// SeparateThreadUpdate runs on the worker goroutine.
	SeparateThreadUpdate
	// SeparateThreadComplete runs on the frame goroutine after the worker is joined.
	SeparateThreadComplete
)

// All lists every phase in dispatch order.
var All = []Phase{Update, FixedUpdate, LateUpdate, MainThreadUpdate, SeparateThreadUpdate, SeparateThreadComplete}

func (p Phase) String() string {
	switch p {
	case Update:
		return "update"
	case FixedUpdate:
		return "fixed_update"
	case LateUpdate:
		return "late_update"
	case MainThreadUpdate:
		return "main_thread_update"
	case SeparateThreadUpdate:
		return "separate_thread_update"
	case SeparateThreadComplete:
		return "separate_thread_complete"
	default:
		return "unknown"
	}
}
