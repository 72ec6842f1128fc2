package codec2

// BufferChannel moves buffers between the session's owner and the
// component. The session tells it when the component changes, when to
// hand buffers out and when to withhold them; buffer ownership and
// allocation strategy are entirely the channel's business.
type BufferChannel interface {
	// SetComponent attaches the freshly allocated component.
	SetComponent(Component)

	// Start makes buffers available to the owner using the configured
	// formats.
	Start(input, output MediaFormat) error

	// Stop withholds buffers and stops feeding the component.
	Stop()

	// Flush hands back work that was flushed out of the component so the
	// channel can reclaim the buffers it owns.
	Flush(drained []*Work)

	// OnWorkDone returns one completed work item for buffer recycling.
	OnWorkDone(*Work)

	// SetSurface attaches an output render target.
	SetSurface(Surface) error

	// SetGraphicBufferSource attaches the producer end of an encoder
	// input surface.
	SetGraphicBufferSource(GraphicBufferSource) error
}

// Surface is an output render target for decoded frames. The session
// forwards it to the buffer channel untouched.
type Surface interface {
	// Consume renders or discards one decoded frame payload.
	Consume(FrameData) error
}

// BufferProducer is the producer end of an input surface. The session
// owner pushes raw frames into it; the channel turns them into work.
type BufferProducer interface {
	// Submit pushes one raw frame into the session.
	Submit(FrameData) error
}

// GraphicBufferSource feeds frames from a producer surface into a
// running session. Config.SurfaceSource builds one on demand; the
// channel consumes it.
type GraphicBufferSource interface {
	// InitCheck reports whether the source came up usable.
	InitCheck() error

	// Producer returns the handle the session owner renders into.
	Producer() BufferProducer
}

// InputSurface is a persistent input surface created elsewhere and
// offered for reuse through InitiateSetInputSurface.
type InputSurface interface {
	// Producer returns the producer end of the surface.
	Producer() BufferProducer
}
