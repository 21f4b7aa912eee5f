package media

// State is the lifecycle of one operation (an estimate or a conversion).
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateEstimating
	StateConverting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateEstimating:
		return "estimating"
	case StateConverting:
		return "converting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Pending reports whether a fresh estimate is on its way. Hosts show an
// "estimating" indicator instead of a number while this is true.
func (s State) Pending() bool {
	return s == StateDebouncing || s == StateEstimating
}
