// Package session owns the long-lived search session: one browser, one
// lease, one page, serialized searches, and the background watchdog that
// clears challenges appearing between them.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/time/rate"

	"github.com/use-agent/dorkhound/browser"
	"github.com/use-agent/dorkhound/captcha"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/dork"
	"github.com/use-agent/dorkhound/engine"
	"github.com/use-agent/dorkhound/models"
	"github.com/use-agent/dorkhound/proxy"
)

// liveSession is the current browser incarnation. Replaced wholesale on
// restart or rotation; never mutated in place except for the counter.
type liveSession struct {
	browser  *browser.Browser
	page     *rod.Page
	lease    *proxy.Lease
	searches int
}

// Controller serializes searches over a single stealth session and
// rebuilds it when the restart threshold or a rotation demands it.
type Controller struct {
	cfg    *config.Config
	prov   proxy.Provisioner
	stats  *Stats
	pacer  *rate.Limiter
	solver *captcha.Solver
	dog    *watchdog

	// rebuild replaces the live session with a fresh browser on the given
	// lease. A seam for tests; production uses rebuildSession.
	rebuild func(ctx context.Context, lease *proxy.Lease) error

	mu   sync.Mutex
	sess *liveSession
}

// NewController wires the controller. prov may be nil when provisioning
// is not configured; all rotation paths then report unavailable.
func NewController(cfg *config.Config, prov proxy.Provisioner) *Controller {
	c := &Controller{
		cfg:   cfg,
		prov:  prov,
		stats: &Stats{},
		pacer: newPacer(cfg.Search.QueriesPerMinute),
	}
	c.rebuild = c.rebuildSession
	c.solver = captcha.NewSolver(
		cfg.Captcha,
		captcha.NewTranscriber(cfg.Transcribe),
		&captcha.AudioFetcher{Dir: cfg.Captcha.AudioDir},
		c.rotateLeaseLocked,
	)
	return c
}

func newPacer(queriesPerMinute float64) *rate.Limiter {
	if queriesPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(queriesPerMinute/60.0), 1)
}

// Initialize acquires a lease if available, launches the session and
// starts the watchdog. A lease acquisition failure degrades to a direct
// connection instead of failing startup.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lease := c.acquireLeaseQuiet(ctx)
	if err := c.rebuild(ctx, lease); err != nil {
		if lease != nil && c.prov != nil {
			_ = c.prov.Release(ctx, lease.ID)
		}
		return err
	}

	c.dog = newWatchdog(
		c.cfg.Captcha.WatchdogInterval,
		c.stats,
		c.watchdogDetect,
		c.watchdogResolve,
	)
	c.dog.start()
	slog.Info("session initialized", "proxied", lease != nil)
	return nil
}

// PerformSearch runs one dork query across the requested engines. Engine
// failures are isolated: a crash on one engine never discards another's
// results. The call counts once against the restart threshold no matter
// how many engines it touches.
func (c *Controller) PerformSearch(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	if req.MaxResults <= 0 {
		req.MaxResults = c.cfg.Search.MaxResults
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, models.NewSearchError(models.ErrCodeTimeout,
			"canceled while pacing", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return nil, models.NewSearchError(models.ErrCodeInternal,
			"session not initialized", nil)
	}

	if c.sess.searches >= c.cfg.Search.RestartThreshold {
		slog.Info("restart threshold reached, rebuilding session",
			"searches", c.sess.searches)
		if err := c.restartLocked(ctx); err != nil {
			return nil, err
		}
	}
	c.sess.searches++

	if c.dog != nil {
		c.dog.pause(true)
		defer c.dog.pause(false)
	}

	profiles := engine.ByName(req.Engines)
	if len(profiles) == 0 {
		return nil, models.NewSearchError(models.ErrCodeInvalidInput,
			"no known engines requested", nil)
	}

	var all []models.SearchResult
	var lastErr error
	for _, profile := range profiles {
		results, err := c.searchEngine(ctx, profile, req.Query, req.MaxResults)
		if err != nil {
			slog.Warn("engine search failed", "engine", profile.Name, "error", err)
			lastErr = err
			continue
		}
		all = append(all, results...)
	}

	filtered := dork.Filter(all, req.Query)
	slog.Info("search complete", "query", req.Query,
		"raw", len(all), "filtered", len(filtered))

	if len(filtered) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return filtered, nil
}

// gateFuncs are the moving parts of the submit gate, injectable so the
// gate's control flow is testable without a browser.
type gateFuncs struct {
	submit  func() error
	detect  func() bool
	resolve func(context.Context) (captcha.Outcome, error)
}

// runSubmitGate submits a query behind the challenge gate. Detection runs
// after every submission attempt whether or not it succeeded: a blocked
// navigation surfaces as a submission error with an interstitial on the
// page, and that challenge must be resolved, not reported.
//
// After a successful resolution the query is resubmitted when the original
// submission never completed or an escalation replaced the session; a
// challenge that survives the resubmission fails the engine. A submission
// error with no challenge on the page is a genuine failure and is returned
// as-is.
func runSubmitGate(ctx context.Context, engineName string, g gateFuncs) error {
	for attempt := 0; ; attempt++ {
		submitErr := g.submit()
		if !g.detect() {
			return submitErr
		}

		out, err := g.resolve(ctx)
		if err != nil || !out.Solved {
			return models.NewSearchError(models.ErrCodeCaptchaUnsolved,
				"challenge blocked "+engineName, err)
		}
		if submitErr == nil && out.Escalations == 0 {
			// Submission took and the challenge cleared in place; the
			// result page is behind the widget.
			return nil
		}
		if attempt >= 1 {
			return models.NewSearchError(models.ErrCodeCaptchaUnsolved,
				"challenge reappeared after resolution on "+engineName, nil)
		}
	}
}

// searchEngine drives one engine: submit behind the challenge gate,
// extraction, pagination. Called with c.mu held.
func (c *Controller) searchEngine(ctx context.Context, profile *engine.Profile, query string, max int) ([]models.SearchResult, error) {
	navTimeout := c.cfg.Search.NavigationTimeout

	gateErr := runSubmitGate(ctx, profile.Name, gateFuncs{
		submit: func() error {
			return browser.SubmitQuery(ctx, c.sess.page, profile, query, c.cfg.Search)
		},
		detect: func() bool {
			if !captcha.Detect(c.sess.page) {
				return false
			}
			c.stats.captchasDetected.Add(1)
			return true
		},
		resolve: func(ctx context.Context) (captcha.Outcome, error) {
			out, err := c.solver.Resolve(ctx, c.currentPage)
			c.stats.recordResolution(out.Solved && err == nil, out.AudioSolved)
			return out, err
		},
	})
	if gateErr != nil {
		return nil, gateErr
	}

	page := c.sess.page
	seen := make(map[string]struct{})
	var results []models.SearchResult

	merge := func(batch []models.SearchResult) int {
		added := 0
		for _, r := range batch {
			if _, ok := seen[r.URL]; ok {
				continue
			}
			seen[r.URL] = struct{}{}
			results = append(results, r)
			added++
		}
		return added
	}

	batch, err := browser.Extract(page, profile, max)
	if err != nil {
		return nil, err
	}
	merge(batch)

	for len(results) < max && browser.HasNextPage(page, profile) {
		if !browser.GotoNextPage(ctx, page, profile, navTimeout) {
			break
		}
		if captcha.Detect(page) {
			// Mid-pagination interstitial: keep what we have, let the
			// watchdog or the next search deal with it.
			c.stats.captchasDetected.Add(1)
			slog.Warn("challenge interrupted pagination", "engine", profile.Name)
			break
		}
		batch, err := browser.Extract(page, profile, max-len(results))
		if err != nil || merge(batch) == 0 {
			break
		}
	}

	return results, nil
}

// Restart tears the session down and rebuilds it under a fresh egress.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartLocked(ctx)
}

// restartLocked swaps lease and browser. Ordering matters: the new lease
// is acquired and the browser rebuilt before the old lease is released,
// so a provisioning outage never strands us lease-less mid-run.
func (c *Controller) restartLocked(ctx context.Context) error {
	var old *proxy.Lease
	if c.sess != nil {
		old = c.sess.lease
	}

	lease := c.acquireLeaseQuiet(ctx)
	if err := c.rebuild(ctx, lease); err != nil {
		if lease != nil && c.prov != nil {
			_ = c.prov.Release(ctx, lease.ID)
		}
		return err
	}

	if old != nil && c.prov != nil {
		_ = c.prov.Release(ctx, old.ID)
	}
	if lease != nil && old != nil && lease.ID != old.ID {
		c.stats.proxySwitches.Add(1)
	}
	return nil
}

// rotateLeaseLocked is the challenge-escalation path: a fresh lease is
// mandatory here, unlike restart, because retrying on the same egress is
// pointless. Called with c.mu held.
func (c *Controller) rotateLeaseLocked(ctx context.Context) error {
	if c.prov == nil || c.prov.Disabled() {
		return models.NewSearchError(models.ErrCodeProxyProvision,
			"proxy rotation unavailable", nil)
	}

	newLease, err := c.prov.Acquire(ctx)
	if err != nil {
		return models.NewSearchError(models.ErrCodeProxyProvision,
			"lease acquisition failed during rotation", err)
	}
	if newLease == nil {
		return models.NewSearchError(models.ErrCodeProxyProvision,
			"provisioning disabled mid-run", nil)
	}

	var old *proxy.Lease
	if c.sess != nil {
		old = c.sess.lease
	}

	if err := c.rebuild(ctx, newLease); err != nil {
		_ = c.prov.Release(ctx, newLease.ID)
		return err
	}
	if old != nil {
		_ = c.prov.Release(ctx, old.ID)
	}
	c.stats.proxySwitches.Add(1)
	slog.Info("egress rotated", "lease", newLease.ID)
	return nil
}

// rebuildSession is the production rebuild: close the old browser,
// launch a new one on the lease, open the working page.
func (c *Controller) rebuildSession(ctx context.Context, lease *proxy.Lease) error {
	if c.sess != nil && c.sess.browser != nil {
		c.sess.browser.Close()
	}

	b, err := browser.Launch(c.cfg.Browser, lease)
	if err != nil {
		return err
	}
	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return err
	}

	c.sess = &liveSession{browser: b, page: page, lease: lease}
	return nil
}

// acquireLeaseQuiet tries for a lease and degrades to nil on any
// failure; a direct connection beats no session at all.
func (c *Controller) acquireLeaseQuiet(ctx context.Context) *proxy.Lease {
	if c.prov == nil {
		return nil
	}
	lease, err := c.prov.Acquire(ctx)
	if err != nil {
		slog.Warn("lease acquisition failed, continuing without proxy", "error", err)
		return nil
	}
	return lease
}

// currentPage reads the live page. Only valid while c.mu is held by the
// calling goroutine.
func (c *Controller) currentPage() *rod.Page {
	return c.sess.page
}

// watchdogDetect probes the idle page. Takes the lock briefly so a
// rebuild cannot hand it a dead page pointer.
func (c *Controller) watchdogDetect() bool {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return false
	}
	page := c.sess.page
	c.mu.Unlock()
	return captcha.Detect(page)
}

// watchdogResolve runs the solver on the idle page under the lock.
func (c *Controller) watchdogResolve(ctx context.Context) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return false, false, nil
	}
	out, err := c.solver.Resolve(ctx, c.currentPage)
	return out.Solved, out.AudioSolved, err
}

// Acknowledge forwards an operator's manual-mode acknowledgement.
func (c *Controller) Acknowledge() {
	c.solver.Acknowledge()
}

// Stats snapshots the watchdog counters.
func (c *Controller) Stats() models.MonitorStats {
	return c.stats.Snapshot()
}

// ResetStats zeroes the watchdog counters.
func (c *Controller) ResetStats() {
	c.stats.Reset()
}

// Cleanup stops the watchdog, closes the browser and releases the lease.
func (c *Controller) Cleanup(ctx context.Context) {
	if c.dog != nil {
		c.dog.stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return
	}
	if c.sess.browser != nil {
		c.sess.browser.Close()
	}
	if c.sess.lease != nil && c.prov != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = c.prov.Release(releaseCtx, c.sess.lease.ID)
	}
	c.sess = nil
	slog.Info("session cleaned up")
}
