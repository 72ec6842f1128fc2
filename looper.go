package codec2

import "sync"

// looper executes posted functions one at a time in posting order on a
// dedicated goroutine. Posting never blocks and the queue is unbounded,
// so a slow command delays later commands but never the posters.
//
// A looper is created with its session and shut down by the session's
// cleanup once the session becomes unreachable; commands still queued at
// that point have nothing left to operate on and are dropped.
type looper struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
}

func newLooper() *looper {
	l := &looper{wake: make(chan struct{}, 1)}
	go l.loop()
	return l
}

// post appends fn to the queue. It never blocks.
func (l *looper) post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// stop discards queued commands and parks the consumer goroutine for
// good. The command currently running, if any, finishes first.
func (l *looper) stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *looper) loop() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		if l.stopped {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
