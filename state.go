package codec2

// State identifies the lifecycle state of a codec session.
//
// Sessions begin in StateReleased and acquire a component through
// InitiateAllocate. The component reference is held exactly while the
// session is in any state other than StateReleased and StateAllocating.
type State int

const (
	StateReleased   State = iota // No component attached
	StateAllocating              // Component creation in flight
	StateAllocated               // Component attached, not started
	StateStarting                // Start in flight
	StateRunning                 // Component processing work
	StateStopping                // Stop in flight
	StateFlushing                // Flush in flight
	StateFlushed                 // Flushed, waiting for resume
	StateResuming                // Resume in flight
	StateReleasing               // Teardown in flight
)

func (s State) String() string {
	switch s {
	case StateReleased:
		return "released"
	case StateAllocating:
		return "allocating"
	case StateAllocated:
		return "allocated"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFlushing:
		return "flushing"
	case StateFlushed:
		return "flushed"
	case StateResuming:
		return "resuming"
	case StateReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}
