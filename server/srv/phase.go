package srv

import (
	"fmt"

	"github.com/kasperdoggames/crypto-jumper/shared/protocol"
)

// Phase is the lifecycle state of one room.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseRunning
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return protocol.StateWaiting
	case PhaseRunning:
		return protocol.StateRunning
	case PhaseEnd:
		return protocol.StateEnd
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Cause names what drove a transition.
type Cause string

const (
	CauseCountdown Cause = "countdown"
	CauseWinner    Cause = "winner"
	CauseAllDead   Cause = "all_dead"
	CauseLedger    Cause = "ledger"
)

type edge struct{ from, to Phase }

// Waiting -> End is only reachable when the ledger forces the finish.
var transitions = map[edge][]Cause{
	{PhaseWaiting, PhaseRunning}: {CauseCountdown, CauseLedger},
	{PhaseRunning, PhaseEnd}:     {CauseWinner, CauseAllDead, CauseLedger},
	{PhaseWaiting, PhaseEnd}:     {CauseLedger},
}

// CanTransition reports whether cause may move a room from p to to.
func (p Phase) CanTransition(to Phase, cause Cause) bool {
	for _, c := range transitions[edge{p, to}] {
		if c == cause {
			return true
		}
	}
	return false
}
