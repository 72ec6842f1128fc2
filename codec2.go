package codec2

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Watchdog deadlines per operation. Each budget leaves headroom over how
// long the underlying call is expected to take.
const (
	allocateDeadline     = 150 * time.Millisecond // CreateComponent should return within 100ms
	configureDeadline    = 50 * time.Millisecond  // Configure is bookkeeping only
	startDeadline        = 550 * time.Millisecond // Component.Start should return within 500ms
	stopDeadline         = 550 * time.Millisecond // Component.Stop should return within 500ms
	flushDeadline        = 50 * time.Millisecond  // Component.Flush should return within 5ms
	resumeDeadline       = 550 * time.Millisecond // Channel restart, same class as start
	inputSurfaceDeadline = 100 * time.Millisecond // Surface operations may block briefly
)

// CallbackReceiver receives session lifecycle events. Calls may arrive
// from the session's command goroutine, from the goroutine invoking an
// Initiate or Signal method, from a release goroutine or from the
// watchdog, so implementations must be goroutine-safe. No internal locks
// are held during a callback; calling back into the session is allowed.
type CallbackReceiver interface {
	// OnError reports an operation failure. The session state is
	// whatever the failed operation left behind; ActionFatal means the
	// owner should release.
	OnError(err error, action ActionCode)

	// OnComponentAllocated reports a successful InitiateAllocate with
	// the name the component identifies itself by.
	OnComponentAllocated(name string)

	// OnComponentConfigured reports a successful InitiateConfigure with
	// the synthesized formats.
	OnComponentConfigured(input, output MediaFormat)

	OnStartCompleted()
	OnStopCompleted()
	OnFlushCompleted()
	OnReleaseCompleted()

	// OnInputSurfaceCreated reports a successful
	// InitiateCreateInputSurface with the producer handle the owner
	// feeds frames into.
	OnInputSurfaceCreated(input, output MediaFormat, producer BufferProducer)

	// OnInputSurfaceCreationFailed reports a failed
	// InitiateCreateInputSurface.
	OnInputSurfaceCreationFailed(err error)

	// OnInputSurfaceDeclined reports that the session rejected a surface
	// offered through InitiateSetInputSurface.
	OnInputSurfaceDeclined(err error)
}

// Config configures a codec session.
type Config struct {
	Callback CallbackReceiver // Receives lifecycle events (required)
	Channel  BufferChannel    // Buffer plumbing collaborator (required)
	Store    ComponentStore   // Component factory (nil = package default store)

	// SurfaceSource builds the graphic buffer source behind
	// InitiateCreateInputSurface. Nil means input surfaces are not
	// supported.
	SurfaceSource func() (GraphicBufferSource, error)

	Logger hclog.Logger // Structured logger (nil = disabled)
}

// Codec is a single media-codec session. It owns one component instance
// end to end and serializes every lifecycle operation on a dedicated
// command goroutine.
//
// All Initiate and Signal methods return without blocking; results come
// back through the configured CallbackReceiver. Calls made in a state
// that does not permit them are rejected with a fatal StateError and
// leave the session state untouched.
type Codec struct {
	id            string
	callback      CallbackReceiver
	channel       BufferChannel
	store         ComponentStore
	surfaceSource func() (GraphicBufferSource, error)
	log           hclog.Logger

	looper *looper

	mu    sync.Mutex
	state State
	comp  Component

	deadlineMu   sync.Mutex
	deadline     time.Time // Zero while no operation is in flight
	deadlineName string

	formatMu     sync.Mutex
	inputFormat  MediaFormat
	outputFormat MediaFormat

	workMu   sync.Mutex
	workDone []*Work
}

// New creates a codec session in StateReleased and registers it with the
// process-wide watchdog.
func New(config Config) (*Codec, error) {
	if config.Callback == nil {
		return nil, fmt.Errorf("callback is required")
	}
	if config.Channel == nil {
		return nil, fmt.Errorf("channel is required")
	}
	store := config.Store
	if store == nil {
		store = DefaultStore()
	}
	logger := config.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	c := &Codec{
		id:            uuid.NewString(),
		callback:      config.Callback,
		channel:       config.Channel,
		store:         store,
		surfaceSource: config.SurfaceSource,
		state:         StateReleased,
		looper:        newLooper(),
	}
	c.log = logger.Named("session").With("id", c.id)

	// Stop the command goroutine once the session becomes unreachable.
	// The cleanup must not capture c or the session would never be
	// collected.
	runtime.AddCleanup(c, func(l *looper) { l.stop() }, c.looper)

	codecWatchdog().register(c)
	return c, nil
}

// ID returns the session's unique identifier.
func (c *Codec) ID() string {
	return c.id
}

// State returns the current session state.
func (c *Codec) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InputFormat returns a copy of the configured input format, or nil
// before configuration.
func (c *Codec) InputFormat() MediaFormat {
	c.formatMu.Lock()
	defer c.formatMu.Unlock()
	return c.inputFormat.Clone()
}

// OutputFormat returns a copy of the configured output format, or nil
// before configuration.
func (c *Codec) OutputFormat() MediaFormat {
	c.formatMu.Lock()
	defer c.formatMu.Unlock()
	return c.outputFormat.Clone()
}

// InitiateAllocate asks the session to create the named component. The
// session must be in StateReleased. The result arrives through
// OnComponentAllocated or OnError.
func (c *Codec) InitiateAllocate(name string) {
	if !c.guard("allocate", StateReleased, StateAllocating) {
		return
	}
	c.post("allocate", allocateDeadline, func() { c.allocate(name) })
}

func (c *Codec) allocate(name string) {
	comp, err := c.store.CreateComponent(name)
	if err != nil {
		c.log.Error("component creation failed", "component", name, "error", err)
		c.setState(StateReleased)
		c.callback.OnError(fmt.Errorf("create component %q: %w", name, err), ActionFatal)
		return
	}
	if err := comp.SetListener(newComponentListener(c)); err != nil {
		comp.Release()
		c.setState(StateReleased)
		c.callback.OnError(fmt.Errorf("attach listener: %w", err), ActionFatal)
		return
	}

	c.mu.Lock()
	if c.state != StateAllocating {
		// Released while allocating; the cleanup is ours.
		st := c.state
		c.state = StateReleased
		c.mu.Unlock()
		comp.Release()
		c.callback.OnError(&StateError{Op: "allocate", State: st}, ActionFatal)
		return
	}
	c.state = StateAllocated
	c.comp = comp
	c.mu.Unlock()

	c.channel.SetComponent(comp)
	c.log.Debug("component allocated", "component", comp.Name())
	c.callback.OnComponentAllocated(comp.Name())
}

// InitiateConfigure asks the session to configure the component from the
// given request. The session must be in StateAllocated. The result
// arrives through OnComponentConfigured or OnError.
func (c *Codec) InitiateConfigure(request MediaFormat) {
	c.mu.Lock()
	if c.state != StateAllocated {
		st := c.state
		c.mu.Unlock()
		c.callback.OnError(&StateError{Op: "configure", State: st}, ActionFatal)
		return
	}
	c.mu.Unlock()

	c.post("configure", configureDeadline, func() { c.configure(request) })
}

func (c *Codec) configure(request MediaFormat) {
	mime, ok := request.GetString(KeyMime)
	if !ok {
		c.callback.OnError(fmt.Errorf("configure: request has no %q entry", KeyMime), ActionFatal)
		return
	}
	encoder, _ := request.GetBool(KeyEncoder)

	if raw, ok := request[KeySurface]; ok {
		if surface, ok := raw.(Surface); ok {
			if err := c.channel.SetSurface(surface); err != nil {
				c.log.Warn("surface attach failed", "error", err)
			}
		} else {
			c.log.Warn("surface entry has unexpected type", "mime", mime)
		}
	}

	// Components do not negotiate formats here; derive defaults from the
	// request.
	in := MediaFormat{}
	out := MediaFormat{}
	audio := isAudioMime(mime)
	if encoder {
		out[KeyMime] = mime
		in[KeyMime] = rawMimeFor(mime)
		if audio {
			in[KeyChannelCount] = 1
			in[KeySampleRate] = 44100
			out[KeyChannelCount] = 1
			out[KeySampleRate] = 44100
		} else {
			out[KeyWidth] = 1080
			out[KeyHeight] = 1920
		}
	} else {
		in[KeyMime] = mime
		out[KeyMime] = rawMimeFor(mime)
		if audio {
			out[KeyChannelCount] = 2
			out[KeySampleRate] = 44100
		}
	}

	c.formatMu.Lock()
	c.inputFormat = in
	c.outputFormat = out
	c.formatMu.Unlock()

	c.log.Debug("component configured", "mime", mime, "encoder", encoder)
	c.callback.OnComponentConfigured(in.Clone(), out.Clone())
}

// InitiateCreateInputSurface asks the session to create an input surface
// for an encoder. The result arrives through OnInputSurfaceCreated or
// OnInputSurfaceCreationFailed.
func (c *Codec) InitiateCreateInputSurface() {
	c.post("create-input-surface", inputSurfaceDeadline, c.createInputSurface)
}

func (c *Codec) createInputSurface() {
	if c.surfaceSource == nil {
		c.callback.OnInputSurfaceCreationFailed(ErrNotSupported)
		return
	}
	source, err := c.surfaceSource()
	if err != nil {
		c.log.Error("graphic buffer source creation failed", "error", err)
		c.callback.OnInputSurfaceCreationFailed(err)
		return
	}
	if err := source.InitCheck(); err != nil {
		c.log.Error("graphic buffer source failed init check", "error", err)
		c.callback.OnInputSurfaceCreationFailed(err)
		return
	}
	producer := source.Producer()

	if err := c.channel.SetGraphicBufferSource(source); err != nil {
		c.log.Error("channel rejected graphic buffer source", "error", err)
		c.callback.OnInputSurfaceCreationFailed(err)
		return
	}

	c.formatMu.Lock()
	in, out := c.inputFormat.Clone(), c.outputFormat.Clone()
	c.formatMu.Unlock()
	c.callback.OnInputSurfaceCreated(in, out, producer)
}

// InitiateSetInputSurface offers a previously created input surface for
// reuse. The session reports the outcome through OnInputSurfaceDeclined;
// surface reuse is not supported.
func (c *Codec) InitiateSetInputSurface(surface InputSurface) {
	c.post("set-input-surface", inputSurfaceDeadline, func() { c.setInputSurface(surface) })
}

func (c *Codec) setInputSurface(surface InputSurface) {
	_ = surface
	c.callback.OnInputSurfaceDeclined(ErrNotSupported)
}

// InitiateStart asks the session to start the component and the buffer
// flow. The session must be in StateAllocated. The result arrives
// through OnStartCompleted or OnError.
func (c *Codec) InitiateStart() {
	if !c.guard("start", StateAllocated, StateStarting) {
		return
	}
	c.post("start", startDeadline, c.start)
}

func (c *Codec) start() {
	comp, ok := c.componentIn("start", StateStarting)
	if !ok {
		return
	}
	if err := comp.Start(); err != nil {
		c.log.Error("component start failed", "error", err)
		c.callback.OnError(fmt.Errorf("start component: %w", err), ActionFatal)
		return
	}

	c.formatMu.Lock()
	in, out := c.inputFormat, c.outputFormat
	c.formatMu.Unlock()
	if err := c.channel.Start(in, out); err != nil {
		c.log.Error("channel start failed", "error", err)
		c.callback.OnError(fmt.Errorf("start channel: %w", err), ActionFatal)
		return
	}

	if !c.guard("start", StateStarting, StateRunning) {
		return
	}
	c.callback.OnStartCompleted()
}

// InitiateShutdown stops or releases the session. With keepAllocated the
// component survives for later reuse; otherwise the session tears down
// completely.
func (c *Codec) InitiateShutdown(keepAllocated bool) {
	if keepAllocated {
		c.InitiateStop()
	} else {
		c.InitiateRelease(true)
	}
}

// InitiateStop halts the component and returns the session to
// StateAllocated. Stopping a session that is already stopped, released
// or being torn down completes immediately; every call produces its own
// OnStopCompleted.
func (c *Codec) InitiateStop() {
	c.mu.Lock()
	switch c.state {
	case StateAllocated, StateReleased, StateStopping, StateReleasing:
		// Already stopped, released, or doing it right now.
		c.mu.Unlock()
		c.callback.OnStopCompleted()
		return
	}
	c.state = StateStopping
	c.mu.Unlock()

	c.post("stop", stopDeadline, c.stop)
}

func (c *Codec) stop() {
	c.mu.Lock()
	if c.state == StateReleasing {
		// Release owns the teardown from here.
		c.mu.Unlock()
		c.callback.OnStopCompleted()
		return
	}
	if c.state != StateStopping {
		st := c.state
		c.mu.Unlock()
		c.callback.OnError(&StateError{Op: "stop", State: st}, ActionFatal)
		return
	}
	comp := c.comp
	c.mu.Unlock()

	c.channel.Stop()
	if err := comp.Stop(); err != nil {
		c.log.Error("component stop failed", "error", err)
		c.callback.OnError(fmt.Errorf("stop component: %w", err), ActionFatal)
	}

	c.mu.Lock()
	if c.state == StateStopping {
		c.state = StateAllocated
	}
	c.mu.Unlock()
	c.callback.OnStopCompleted()
}

// InitiateRelease discards the component and moves the session to
// StateReleased. Release wins over queued operations: once the state
// turns StateReleasing their guards fail. With sendCallback false the
// owner forgoes OnReleaseCompleted, for teardown paths that have stopped
// listening.
func (c *Codec) InitiateRelease(sendCallback bool) {
	c.mu.Lock()
	switch c.state {
	case StateReleased, StateReleasing:
		// Already released or doing it right now.
		c.mu.Unlock()
		if sendCallback {
			c.callback.OnReleaseCompleted()
		}
		return
	case StateAllocating:
		// With the altered state the allocate body fails and cleans up.
		c.state = StateReleasing
		c.mu.Unlock()
		if sendCallback {
			c.callback.OnReleaseCompleted()
		}
		return
	}
	c.state = StateReleasing
	c.mu.Unlock()

	// Teardown must not wait behind queued commands.
	go c.release(sendCallback)
}

func (c *Codec) release(sendCallback bool) {
	c.mu.Lock()
	if c.state == StateReleased {
		c.mu.Unlock()
		if sendCallback {
			c.callback.OnReleaseCompleted()
		}
		return
	}
	comp := c.comp
	c.mu.Unlock()

	c.channel.Stop()
	if err := comp.Release(); err != nil {
		c.log.Warn("component release failed", "error", err)
	}

	c.mu.Lock()
	c.state = StateReleased
	c.comp = nil
	c.mu.Unlock()

	c.log.Debug("session released")
	if sendCallback {
		c.callback.OnReleaseCompleted()
	}
}

// SetSurface attaches an output render target to the running session.
func (c *Codec) SetSurface(surface Surface) error {
	return c.channel.SetSurface(surface)
}

// SignalFlush asks the session to discard in-flight work. The session
// must be in StateRunning. The result arrives through OnFlushCompleted
// or OnError.
func (c *Codec) SignalFlush() {
	if !c.guard("flush", StateRunning, StateFlushing) {
		return
	}
	c.post("flush", flushDeadline, c.flush)
}

func (c *Codec) flush() {
	comp, ok := c.componentIn("flush", StateFlushing)
	if !ok {
		return
	}

	c.channel.Stop()
	drained, err := comp.Flush(FlushComponent)
	if err != nil {
		c.log.Error("component flush failed", "error", err)
		c.callback.OnError(fmt.Errorf("flush component: %w", err), ActionFatal)
	}
	c.channel.Flush(drained)

	c.mu.Lock()
	if c.state != StateFlushing {
		// Release won the race while the component was draining; a late
		// flush must not revive the session.
		c.mu.Unlock()
		return
	}
	c.state = StateFlushed
	c.mu.Unlock()
	c.callback.OnFlushCompleted()
}

// SignalResume moves a flushed session back to StateRunning. The
// transition to StateResuming happens before this returns; buffer flow
// resumes once the queued command restarts the channel. There is no
// completion callback.
func (c *Codec) SignalResume() {
	if !c.guard("resume", StateFlushed, StateResuming) {
		return
	}
	c.post("resume", resumeDeadline, c.resume)
}

func (c *Codec) resume() {
	if _, ok := c.componentIn("resume", StateResuming); !ok {
		return
	}
	if err := c.channel.Start(nil, nil); err != nil {
		c.log.Error("channel restart failed", "error", err)
		c.callback.OnError(fmt.Errorf("restart channel: %w", err), ActionFatal)
		return
	}
	c.guard("resume", StateResuming, StateRunning)
}

// SignalSetParameters forwards runtime parameter updates to components
// that implement ParameterReceiver. Other components have the update
// dropped.
func (c *Codec) SignalSetParameters(params MediaFormat) {
	c.post("set-parameters", 0, func() {
		c.mu.Lock()
		comp := c.comp
		c.mu.Unlock()

		pr, ok := comp.(ParameterReceiver)
		if !ok {
			c.log.Debug("component does not accept parameter updates")
			return
		}
		if err := pr.SetParameters(params); err != nil {
			c.log.Warn("parameter update rejected", "error", err)
		}
	})
}

// SignalEndOfInputStream is accepted and ignored; end of stream arrives
// through the input work items instead.
func (c *Codec) SignalEndOfInputStream() {
}

// SignalRequestIDRFrame asks components that implement KeyframeRequester
// to emit a key frame as soon as possible. Other components ignore the
// request.
func (c *Codec) SignalRequestIDRFrame() {
	c.post("request-keyframe", 0, func() {
		c.mu.Lock()
		comp := c.comp
		c.mu.Unlock()

		kr, ok := comp.(KeyframeRequester)
		if !ok {
			c.log.Debug("component cannot force key frames")
			return
		}
		if err := kr.RequestKeyframe(); err != nil {
			c.log.Warn("key frame request failed", "error", err)
		}
	})
}

// onWorkDone queues a batch of completed work and schedules drain turns.
// Called from the component listener on an arbitrary goroutine.
func (c *Codec) onWorkDone(items []*Work) {
	c.workMu.Lock()
	c.workDone = append(c.workDone, items...)
	c.workMu.Unlock()

	c.post("work-done", 0, c.drainWorkDone)
}

// drainWorkDone hands exactly one completed work item to the channel,
// re-posting itself while items remain so control commands can
// interleave with heavy drain traffic.
func (c *Codec) drainWorkDone() {
	c.workMu.Lock()
	if len(c.workDone) == 0 {
		c.workMu.Unlock()
		return
	}
	item := c.workDone[0]
	c.workDone[0] = nil
	c.workDone = c.workDone[1:]
	if len(c.workDone) > 0 {
		c.post("work-done", 0, c.drainWorkDone)
	}
	c.workMu.Unlock()

	c.channel.OnWorkDone(item)
}

// onTripped logs configuration fields the component could not honor.
// Called from the component listener on an arbitrary goroutine.
func (c *Codec) onTripped(errs []SettingError) {
	for _, se := range errs {
		c.log.Warn("component tripped on setting", "field", se.Field, "detail", se.Message)
	}
}

// onComponentError forwards an asynchronous component failure to the
// owner. Called from the component listener on an arbitrary goroutine.
func (c *Codec) onComponentError(err error) {
	c.log.Error("component reported error", "error", err)
	c.callback.OnError(fmt.Errorf("component: %w", err), ActionFatal)
}

// releaseIfStuck force-releases the session when the operation in flight
// has overrun its deadline. The deadline is consumed as it is checked so
// one stuck operation produces exactly one error.
func (c *Codec) releaseIfStuck() {
	c.deadlineMu.Lock()
	name := c.deadlineName
	expired := !c.deadline.IsZero() && time.Now().After(c.deadline)
	if expired {
		c.deadline = time.Time{}
		c.deadlineName = ""
	}
	c.deadlineMu.Unlock()
	if !expired {
		return
	}

	c.log.Warn("operation exceeded its deadline, releasing", "operation", name)
	c.callback.OnError(fmt.Errorf("%w: %s", ErrTimedOut, name), ActionFatal)
	c.InitiateRelease(true)
}

// post queues a command body. The deadline is armed when the body is
// dequeued, not when it is posted, and cleared again as soon as the body
// returns.
func (c *Codec) post(name string, budget time.Duration, body func()) {
	c.looper.post(func() {
		if budget > 0 {
			c.setDeadline(time.Now().Add(budget), name)
		}
		body()
		c.setDeadline(time.Time{}, "")
	})
}

func (c *Codec) setDeadline(deadline time.Time, name string) {
	c.deadlineMu.Lock()
	c.deadline = deadline
	c.deadlineName = name
	c.deadlineMu.Unlock()
}

func (c *Codec) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// guard moves the session from want to next, reporting a fatal
// StateError and leaving the state untouched on a mismatch.
func (c *Codec) guard(op string, want, next State) bool {
	c.mu.Lock()
	if c.state != want {
		st := c.state
		c.mu.Unlock()
		c.callback.OnError(&StateError{Op: op, State: st}, ActionFatal)
		return false
	}
	c.state = next
	c.mu.Unlock()
	return true
}

// componentIn returns the component if the session is in want, reporting
// a fatal StateError otherwise.
func (c *Codec) componentIn(op string, want State) (Component, bool) {
	c.mu.Lock()
	if c.state != want {
		st := c.state
		c.mu.Unlock()
		c.callback.OnError(&StateError{Op: op, State: st}, ActionFatal)
		return nil, false
	}
	comp := c.comp
	c.mu.Unlock()
	return comp, true
}
