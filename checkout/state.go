package checkout

import (
	"github.com/go-errors/errors"
)

// State of a single checkout attempt.
type State int

const (
	Requested State = iota
	Issued
	Pending
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Requested:
		return "REQUESTED"
	case Issued:
		return "ISSUED"
	case Pending:
		return "PENDING"
	case Settled:
		return "SETTLED"
	case Failed:
		return "FAILED"
	default:
		return "INVALID STATE"
	}
}

// Terminal states never change again.
func (s State) Terminal() bool {
	return s == Settled || s == Failed
}

var transitions = map[State][]State{
	Requested: {Issued, Failed},
	Issued:    {Pending, Failed},
	Pending:   {Settled},
}

func (s State) canTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

var errInvalidTransition = errors.New("invalid checkout state transition")
