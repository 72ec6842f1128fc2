package codec2

import (
	"sync"
	"time"
	"weak"
)

// watchInterval is how often the watchdog sweeps registered sessions.
// Mutable so package tests can shorten it before the first session is
// created.
var watchInterval = 3 * time.Second

// watchdog force-releases sessions whose current operation overran its
// deadline. One instance per process, started lazily on the first
// session and never stopped. Sessions are held weakly: registration
// never extends a session's lifetime.
type watchdog struct {
	mu     sync.Mutex
	codecs []weak.Pointer[Codec]
}

var (
	watchdogOnce sync.Once
	watchdogInst *watchdog
)

func codecWatchdog() *watchdog {
	watchdogOnce.Do(func() {
		watchdogInst = &watchdog{}
		go watchdogInst.watch(watchInterval)
	})
	return watchdogInst
}

func (w *watchdog) register(c *Codec) {
	w.mu.Lock()
	w.codecs = append(w.codecs, weak.Make(c))
	w.mu.Unlock()
}

func (w *watchdog) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		w.sweep()
	}
}

// sweep visits every registered session, pruning the ones that have
// been collected. Deadline checks run outside the registry lock because
// a stuck session's release path may call back into the package.
func (w *watchdog) sweep() {
	w.mu.Lock()
	live := w.codecs[:0]
	sessions := make([]*Codec, 0, len(w.codecs))
	for _, ref := range w.codecs {
		c := ref.Value()
		if c == nil {
			continue
		}
		live = append(live, ref)
		sessions = append(sessions, c)
	}
	clear(w.codecs[len(live):])
	w.codecs = live
	w.mu.Unlock()

	for _, c := range sessions {
		c.releaseIfStuck()
	}
}
