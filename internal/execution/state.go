package execution

// State is a phase of one position group's order lifecycle.
type State string

const (
	StatePendingEntry       State = "PENDING_ENTRY"
	StateEntryFilled        State = "ENTRY_FILLED"
	StateProtectivePlaced   State = "PROTECTIVE_ORDERS_PLACED"
	StateComplete           State = "COMPLETE"
	StatePartiallyProtected State = "PARTIALLY_PROTECTED"
	StateFailed             State = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StatePartiallyProtected, StateFailed:
		return true
	}
	return false
}

// transitions lists the legal edges of the lifecycle. The zero State is the
// start of every lifecycle.
var transitions = map[State][]State{
	"":                    {StatePendingEntry},
	StatePendingEntry:     {StateEntryFilled, StateFailed},
	StateEntryFilled:      {StateProtectivePlaced, StatePartiallyProtected, StateFailed},
	StateProtectivePlaced: {StateComplete, StateFailed},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
