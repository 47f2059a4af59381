package sequencer

import (
	"fmt"

	"github.com/w1xm/covers_interface/relay"
)

// State is both the requested target and the committed state of the roof.
// The numeric values are what gets persisted.
type State uint8

const (
	Stopped State = iota
	Open
	Closed
)

func (s State) Valid() bool {
	return s <= Closed
}

func (s State) String() string {
	if s.Valid() {
		return labels[s]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

func (s State) direction() relay.Direction {
	switch s {
	case Open:
		return relay.Opening
	case Closed:
		return relay.Closing
	}
	return relay.None
}

// Indexed by State, plus two for a move in progress.
var labels = [...]string{
	"STOPPED",
	"OPEN",
	"CLOSED",
	"OPENING",
	"CLOSING",
}

// Status is a coherent snapshot of the committed state and move counter.
type Status struct {
	State       State
	MoveCounter int
}

func (s Status) Moving() bool {
	return s.MoveCounter > 0
}

// Label returns the status reply for the serial protocol.
// Stopped never has a move in progress, so it always reports STOPPED.
func (s Status) Label() string {
	if s.State == Stopped || !s.State.Valid() {
		return labels[Stopped]
	}
	i := int(s.State)
	if s.Moving() {
		i += 2
	}
	return labels[i]
}
