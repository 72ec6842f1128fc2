package codec2

import "time"

// FrameFlags annotate the payload of a work item.
type FrameFlags uint32

const (
	FlagEndOfStream FrameFlags = 1 << iota // Last item of the stream
	FlagCodecConfig                        // Payload is codec configuration, not media
	FlagIncomplete                         // Item continues in the next work item
	FlagDropFrame                          // Payload should not be rendered
)

// Has reports whether all bits of flag are set.
func (f FrameFlags) Has(flag FrameFlags) bool {
	return f&flag == flag
}

// Ordinal orders work items within a stream.
type Ordinal struct {
	FrameIndex uint64        // Monotonic input frame counter
	Timestamp  time.Duration // Presentation timestamp
}

// FrameData is one directional payload of a work item.
type FrameData struct {
	Flags   FrameFlags
	Ordinal Ordinal
	Buffers [][]byte
}

// Work is a unit of codec work: the input payload handed to the component
// and the output payload the component produced for it.
//
// Work items travel from the buffer channel into the component, and come
// back through the session's drain queue in completion order.
type Work struct {
	Input  FrameData
	Output FrameData
	Result error // nil when the item completed normally
}

// EndOfStream reports whether the item carries the end-of-stream marker.
func (w *Work) EndOfStream() bool {
	return w.Input.Flags.Has(FlagEndOfStream)
}
