package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// watchdog polls the live page for challenges between searches, so an
// interstitial that appears while the session idles is cleared before
// the next query hits it.
type watchdog struct {
	interval time.Duration
	stats    *Stats

	// detect and resolve are the probe and the resolution pipeline.
	// Injected so ticks can be driven without a browser.
	detect  func() bool
	resolve func(ctx context.Context) (solved, audio bool, err error)

	busy   atomic.Bool
	paused atomic.Bool
	done   chan struct{}
}

func newWatchdog(interval time.Duration, stats *Stats,
	detect func() bool,
	resolve func(ctx context.Context) (bool, bool, error)) *watchdog {
	return &watchdog{
		interval: interval,
		stats:    stats,
		detect:   detect,
		resolve:  resolve,
		done:     make(chan struct{}),
	}
}

// start runs the poll loop until stop. Page errors inside a tick are
// swallowed by the probes; a detached page simply reads as "no challenge".
func (w *watchdog) start() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.done:
				return
			case <-ticker.C:
				w.tick(context.Background())
			}
		}
	}()
}

func (w *watchdog) stop() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

// pause suspends detection while a search owns the page; the search path
// runs its own challenge gate.
func (w *watchdog) pause(p bool) {
	w.paused.Store(p)
}

// tick runs one detection pass. Re-entrancy guarded: a tick that fires
// while a resolution is still running is dropped, never queued.
func (w *watchdog) tick(ctx context.Context) {
	if w.paused.Load() {
		return
	}
	if !w.busy.CompareAndSwap(false, true) {
		return
	}
	defer w.busy.Store(false)

	if !w.detect() {
		return
	}
	w.stats.captchasDetected.Add(1)
	slog.Info("watchdog detected a challenge on the idle page")

	solved, audio, err := w.resolve(ctx)
	if err != nil {
		slog.Warn("watchdog challenge resolution failed", "error", err)
	}
	w.stats.recordResolution(solved && err == nil, audio)
}
