package types

// MaxPayload is the largest command text that fits a single UDP datagram
// on a standard Ethernet MTU.
const MaxPayload = 1472

// Command is one SDK instruction queued for a drone.
type Command struct {
	Text     string
	Blocking bool // counted by the drone until its response is observed
}

type CommandState int

const (
	StateQueued CommandState = iota
	StateInFlight
	StateAcked
	StateForgotten
)

func (s CommandState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInFlight:
		return "in-flight"
	case StateAcked:
		return "acked"
	case StateForgotten:
		return "forgotten"
	}
	return "unknown"
}

type DroneStatus int

const (
	StatusIdle DroneStatus = iota
	StatusBusy
	StatusAcked
	StatusError
)

func (s DroneStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusAcked:
		return "acked"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// DroneSpec describes how to reach a single drone.
type DroneSpec struct {
	ID     string
	Bind   string // local UDP address, e.g. ":8890"
	Remote string // drone command address, e.g. "192.168.10.1:8889"
}

type Fleet struct {
	Drones []DroneSpec
}

// IDs returns the drone identifiers in fleet order.
func (f *Fleet) IDs() []string {
	ids := make([]string, 0, len(f.Drones))
	for _, d := range f.Drones {
		ids = append(ids, d.ID)
	}
	return ids
}
