package codec2

// FlushScope selects how much of a component chain a flush covers.
type FlushScope int

const (
	FlushComponent FlushScope = iota // Flush this component only
	FlushChain                       // Flush the component and everything downstream
)

func (s FlushScope) String() string {
	switch s {
	case FlushComponent:
		return "component"
	case FlushChain:
		return "chain"
	default:
		return "unknown"
	}
}

// SettingError describes a configuration field a component rejected or
// clamped while processing work.
type SettingError struct {
	Field   string // Offending field name
	Message string // Component-provided detail
}

// Component is a codec implementation driven by a session. The session
// serializes calls to Start, Stop, Flush and Release; implementations may
// still be called from different goroutines over time and must not assume
// a single caller goroutine.
type Component interface {
	// Name reports the name the component was created under.
	Name() string

	// SetListener attaches the listener receiving completed work and
	// asynchronous errors. The session calls it once, right after
	// creation.
	SetListener(ComponentListener) error

	// Start begins processing queued work.
	Start() error

	// Stop halts processing and discards pending work.
	Stop() error

	// Flush halts processing and returns the work items accepted but not
	// yet completed, in acceptance order.
	Flush(FlushScope) ([]*Work, error)

	// Release frees the component. Idempotent.
	Release() error
}

// ComponentListener receives completion and error events from a
// Component. Calls arrive on arbitrary goroutines.
type ComponentListener interface {
	// OnWorkDone delivers completed work items in completion order.
	OnWorkDone([]*Work)

	// OnTripped reports configuration fields the component could not
	// honor while processing.
	OnTripped([]SettingError)

	// OnError reports a failure not tied to a single work item.
	OnError(error)
}

// ComponentStore creates components by name.
type ComponentStore interface {
	CreateComponent(name string) (Component, error)
}

// ParameterReceiver is implemented by components that accept runtime
// parameter updates. SignalSetParameters forwards to it when present.
type ParameterReceiver interface {
	SetParameters(MediaFormat) error
}

// KeyframeRequester is implemented by video components that can force
// the next output frame to be a key frame. SignalRequestIDRFrame
// forwards to it when present.
type KeyframeRequester interface {
	RequestKeyframe() error
}
