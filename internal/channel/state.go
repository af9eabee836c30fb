package channel

// Mode says what the channel is committed to. A channel in ModePlay rejects
// recording commands and vice versa.
type Mode int

const (
	ModeNone Mode = iota
	ModePlay
	ModeRecord
)

func (m Mode) String() string {
	switch m {
	case ModePlay:
		return "play"
	case ModeRecord:
		return "record"
	default:
		return "none"
	}
}

// State is the playback/recording lifecycle state. The ordinal values are
// part of the bridge contract and must not change.
type State int

const (
	StateNone State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopped
	StateLoading
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// transitions is the set of legal state changes. Error handling bypasses
// the table and forces StateStopped directly.
var transitions = map[State][]State{
	StateNone:     {StateLoading, StateStarting, StateRunning},
	StateLoading:  {StateStarting, StateRunning, StateStopped},
	StateStarting: {StateRunning, StatePaused, StateStopped},
	StateRunning:  {StatePaused, StateStopped},
	StatePaused:   {StateRunning, StateStopped},
	StateStopped:  {StateStarting, StateRunning},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
