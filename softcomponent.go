package codec2

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Soft component errors
var (
	ErrWorkDiscarded = errors.New("work discarded by flush")
)

// ProcessFunc consumes one work item, filling its output in place.
// Returning done=false parks the item until Finish completes it; a
// non-nil err is recorded as the item's result and reports the item
// immediately.
type ProcessFunc func(*Work) (done bool, err error)

// SoftComponentConfig configures a SoftComponent.
type SoftComponentConfig struct {
	Name    string      // Name reported to the session (required)
	Process ProcessFunc // Per-item work function (required)

	// Lifecycle hooks, all optional. Hooks must not call back into the
	// component.
	OnStart   func() error
	OnStop    func() error
	OnFlush   func() error
	OnRelease func() error

	Logger hclog.Logger // Structured logger (nil = disabled)
}

// SoftComponent is a pure-Go Component that runs a process function over
// queued work on a single worker goroutine. Completion order matches
// queue order. It also accepts runtime parameter updates and key frame
// requests.
//
// Work enters through Queue; buffer channel implementations that drive a
// SoftComponent call it directly.
type SoftComponent struct {
	name    string
	process ProcessFunc

	onStart   func() error
	onStop    func() error
	onFlush   func() error
	onRelease func() error
	log       hclog.Logger

	ctx  context.Context
	stop context.CancelFunc
	grp  *errgroup.Group

	mu            sync.Mutex
	running       bool
	released      bool
	workerStarted bool
	listener      ComponentListener

	queueMu sync.Mutex
	queue   []*Work
	gen     uint64 // Bumped by Flush to invalidate in-flight work
	wake    chan struct{}

	pendingMu sync.Mutex
	pending   map[uint64]*Work // Parked items by input frame index

	paramsMu sync.Mutex
	params   MediaFormat

	keyframeRequested atomic.Bool
}

var (
	_ Component         = (*SoftComponent)(nil)
	_ ParameterReceiver = (*SoftComponent)(nil)
	_ KeyframeRequester = (*SoftComponent)(nil)
)

// NewSoftComponent creates a soft component around a process function.
func NewSoftComponent(config SoftComponentConfig) (*SoftComponent, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if config.Process == nil {
		return nil, fmt.Errorf("process function is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	ctx, stop := context.WithCancel(context.Background())
	grp, ctx := errgroup.WithContext(ctx)

	return &SoftComponent{
		name:      config.Name,
		process:   config.Process,
		onStart:   config.OnStart,
		onStop:    config.OnStop,
		onFlush:   config.OnFlush,
		onRelease: config.OnRelease,
		log:       logger.Named("component").With("name", config.Name),
		ctx:       ctx,
		stop:      stop,
		grp:       grp,
		wake:      make(chan struct{}, 1),
		pending:   make(map[uint64]*Work),
	}, nil
}

// Name returns the component's configured name.
func (s *SoftComponent) Name() string {
	return s.name
}

// SetListener attaches the completion listener. Replacing the listener
// while the component runs is rejected; clearing it is always allowed.
func (s *SoftComponent) SetListener(l ComponentListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && l != nil {
		return ErrBadState
	}
	s.listener = l
	return nil
}

// Start begins processing queued work.
func (s *SoftComponent) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || s.running {
		return ErrBadState
	}
	if s.onStart != nil {
		if err := s.onStart(); err != nil {
			return fmt.Errorf("start hook: %w", err)
		}
	}
	if !s.workerStarted {
		s.workerStarted = true
		s.grp.Go(s.worker)
	}
	s.running = true
	s.log.Debug("component started")
	return nil
}

// Stop halts processing and discards queued and parked work.
func (s *SoftComponent) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrBadState
	}
	s.running = false
	s.mu.Unlock()

	s.clearWork()
	s.log.Debug("component stopped")
	if s.onStop != nil {
		if err := s.onStop(); err != nil {
			return fmt.Errorf("stop hook: %w", err)
		}
	}
	return nil
}

// Flush halts intake and returns every accepted-but-incomplete work
// item: queued items first, then parked items by frame index. Items
// being processed while the flush runs complete with ErrWorkDiscarded.
func (s *SoftComponent) Flush(FlushScope) ([]*Work, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrBadState
	}
	s.mu.Unlock()

	var drained []*Work

	s.queueMu.Lock()
	s.gen++
	drained = append(drained, s.queue...)
	s.queue = nil
	s.queueMu.Unlock()

	s.pendingMu.Lock()
	idxs := make([]uint64, 0, len(s.pending))
	for idx := range s.pending {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	for _, idx := range idxs {
		drained = append(drained, s.pending[idx])
	}
	s.pending = make(map[uint64]*Work)
	s.pendingMu.Unlock()

	s.log.Debug("component flushed", "drained", len(drained))
	if s.onFlush != nil {
		if err := s.onFlush(); err != nil {
			return drained, fmt.Errorf("flush hook: %w", err)
		}
	}
	return drained, nil
}

// Release shuts the worker down and frees the component. Safe to call
// while running and safe to call more than once.
func (s *SoftComponent) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	running := s.running
	s.running = false
	started := s.workerStarted
	s.mu.Unlock()

	var errs *multierror.Error
	if running && s.onStop != nil {
		if err := s.onStop(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("stop hook: %w", err))
		}
	}
	s.clearWork()

	s.stop()
	if started {
		if err := s.grp.Wait(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("worker: %w", err))
		}
	}

	if s.onRelease != nil {
		if err := s.onRelease(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("release hook: %w", err))
		}
	}
	s.log.Debug("component released")
	return errs.ErrorOrNil()
}

// Queue hands work items to the component. Accepted only while running.
func (s *SoftComponent) Queue(items ...*Work) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrBadState
	}

	s.queueMu.Lock()
	s.queue = append(s.queue, items...)
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Drain marks the last queued item as end of stream so the stream winds
// down once it completes. With an empty queue there is nothing to mark.
func (s *SoftComponent) Drain() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrBadState
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) > 0 {
		s.queue[len(s.queue)-1].Input.Flags |= FlagEndOfStream
	}
	return nil
}

// Finish completes a parked work item by input frame index. fill runs on
// the item before it is reported. Unknown indexes are ignored.
func (s *SoftComponent) Finish(frameIndex uint64, fill func(*Work)) {
	s.pendingMu.Lock()
	item, ok := s.pending[frameIndex]
	if ok {
		delete(s.pending, frameIndex)
	}
	s.pendingMu.Unlock()
	if !ok {
		return
	}

	if fill != nil {
		fill(item)
	}
	s.notifyDone(item)
}

// SetParameters merges runtime parameter updates into the component's
// parameter set.
func (s *SoftComponent) SetParameters(params MediaFormat) error {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	if s.params == nil {
		s.params = MediaFormat{}
	}
	for k, v := range params {
		s.params[k] = v
	}
	return nil
}

// Parameters returns a copy of the accumulated runtime parameters.
func (s *SoftComponent) Parameters() MediaFormat {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	return s.params.Clone()
}

// RequestKeyframe asks the process function to emit a key frame on the
// next item.
func (s *SoftComponent) RequestKeyframe() error {
	s.keyframeRequested.Store(true)
	return nil
}

// TakeKeyframeRequest consumes a pending key frame request. Process
// functions call it to learn whether their next output must be a key
// frame.
func (s *SoftComponent) TakeKeyframeRequest() bool {
	return s.keyframeRequested.Swap(false)
}

func (s *SoftComponent) worker() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		default:
		}

		s.queueMu.Lock()
		for len(s.queue) == 0 {
			s.queueMu.Unlock()
			select {
			case <-s.ctx.Done():
				return nil
			case <-s.wake:
			}
			s.queueMu.Lock()
		}
		gen := s.gen
		item := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		s.processOne(item, gen)
	}
}

func (s *SoftComponent) processOne(item *Work, gen uint64) {
	done, err := s.process(item)
	if err != nil {
		item.Result = err
		done = true
	}

	// A flush that raced the processing owns this item now.
	s.queueMu.Lock()
	stale := s.gen != gen
	s.queueMu.Unlock()
	if stale {
		item.Result = ErrWorkDiscarded
		s.notifyDone(item)
		return
	}

	if done {
		s.notifyDone(item)
		return
	}

	// Park until Finish. A second item with the same frame index evicts
	// the first.
	idx := item.Input.Ordinal.FrameIndex
	s.pendingMu.Lock()
	evicted := s.pending[idx]
	s.pending[idx] = item
	s.pendingMu.Unlock()
	if evicted != nil {
		evicted.Result = fmt.Errorf("frame index %d superseded", idx)
		s.notifyDone(evicted)
	}
}

func (s *SoftComponent) notifyDone(items ...*Work) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.OnWorkDone(items)
	}
}

func (s *SoftComponent) clearWork() {
	s.queueMu.Lock()
	s.queue = nil
	s.queueMu.Unlock()

	s.pendingMu.Lock()
	s.pending = make(map[uint64]*Work)
	s.pendingMu.Unlock()
}
