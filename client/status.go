package client

// State is the roof state as seen from the host.
type State int

const (
	Offline State = iota
	Stopped
	Open
	Closed
	Opening
	Closing
)

var labels = map[State]string{
	Offline: "OFFLINE",
	Stopped: "STOPPED",
	Open:    "OPEN",
	Closed:  "CLOSED",
	Opening: "OPENING",
	Closing: "CLOSING",
}

func (s State) String() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return "UNKNOWN"
}

// Moving reports whether the actuators are powered.
func (s State) Moving() bool {
	return s == Opening || s == Closing
}

// ParseState converts a status reply. OFFLINE is never sent by the
// controller and is not accepted.
func ParseState(label string) (State, bool) {
	for s, l := range labels {
		if s != Offline && l == label {
			return s, true
		}
	}
	return Offline, false
}

type Status struct {
	State State
}

type StatusCallback func(status Status)
