package browser

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/engine"
	"github.com/use-agent/dorkhound/models"
)

// SubmitQuery navigates to the engine's home page, clears the search box,
// types the query like a person, and submits. On return the page shows
// the first result page (or an interstitial the caller's CAPTCHA gate
// will catch).
func SubmitQuery(ctx context.Context, page *rod.Page, profile *engine.Profile, query string, cfg config.SearchConfig) error {
	p := page.Context(ctx)
	navTimeout := cfg.NavigationTimeout

	if err := navigate(p, profile.BaseURL, navTimeout); err != nil {
		return models.NewSearchError(models.ErrCodeNavigation,
			"failed to reach "+profile.Name, err)
	}

	// Readiness: wait for the engine's own selector, never a fixed sleep.
	if err := p.Timeout(navTimeout).WaitElementsMoreThan(profile.ReadySelector, 0); err != nil {
		slog.Warn("readiness selector never appeared, continuing",
			"engine", profile.Name, "error", err)
	}

	if profile.ConsentDismissJS != "" {
		if res, err := p.Timeout(3 * time.Second).Eval(profile.ConsentDismissJS); err == nil && res.Value.Bool() {
			slog.Debug("engine cookie banner dismissed", "engine", profile.Name)
			sleep(page, 500*time.Millisecond)
		}
	}
	HandleConsent(p)

	box, err := findSearchBox(p, profile, cfg.ElementTimeout)
	if err != nil {
		return models.NewSearchError(models.ErrCodeSearchFailed,
			"search box not found on "+profile.Name, err)
	}

	SelectAllAndClear(p, box)
	HumanType(p, box, query)
	sleep(page, time.Duration(200+len(query)*2)*time.Millisecond)

	if err := submit(p, profile, box, navTimeout); err != nil {
		return models.NewSearchError(models.ErrCodeSearchFailed,
			"query submission failed on "+profile.Name, err)
	}

	sleep(page, profile.WaitTime)

	// The engine may answer the submit with a fresh consent page or a
	// challenge; clear what we can, the CAPTCHA gate handles the rest.
	HandleConsent(p)
	return nil
}

// navigate drives page.Navigate with up to two alternate wait strategies
// before giving up: load event → DOM stability → settle delay.
func navigate(page *rod.Page, target string, timeout time.Duration) error {
	p := page.Timeout(timeout)
	if err := p.Navigate(target); err != nil {
		return err
	}

	if err := p.WaitLoad(); err == nil {
		return nil
	}
	slog.Debug("load event wait failed, trying DOM stability", "url", target)

	if err := p.WaitDOMStable(500*time.Millisecond, 0.1); err == nil {
		return nil
	}
	slog.Debug("DOM never stabilized, proceeding after settle delay", "url", target)

	sleep(page, 2*time.Second)
	return nil
}

// findSearchBox walks the profile's ordered selector chain.
func findSearchBox(page *rod.Page, profile *engine.Profile, elementTimeout time.Duration) (*rod.Element, error) {
	if elementTimeout <= 0 {
		elementTimeout = 5 * time.Second
	}
	var lastErr error
	for _, sel := range profile.SearchBoxSelectors {
		el, err := page.Timeout(elementTimeout).Element(sel)
		if err != nil {
			lastErr = err
			continue
		}
		if visible, err := el.Visible(); err == nil && !visible {
			continue
		}
		return el, nil
	}
	return nil, lastErr
}

// submit presses Enter, then walks the engine's button fallbacks, then
// raw form submission. Success is "the page navigated", checked by a
// bounded wait on the search URL.
func submit(page *rod.Page, profile *engine.Profile, box *rod.Element, navTimeout time.Duration) error {
	wait := page.Timeout(navTimeout).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)

	if err := page.Keyboard.Press(input.Enter); err == nil {
		wait()
		if onResultsPage(page, profile) {
			return nil
		}
	}

	for _, sel := range profile.SubmitButtonSelectors {
		btn, err := page.Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		wait = page.Timeout(navTimeout).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
		if err := HumanClick(page, btn); err != nil {
			continue
		}
		wait()
		if onResultsPage(page, profile) {
			return nil
		}
	}

	// Raw form submit, the blunt instrument.
	wait = page.Timeout(navTimeout).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if _, err := box.Eval(`() => { const f = this.closest("form"); if (f) f.submit(); }`); err != nil {
		return err
	}
	wait()
	if onResultsPage(page, profile) {
		return nil
	}
	return errNoNavigation
}

var errNoNavigation = models.NewSearchError(models.ErrCodeNavigation,
	"page did not navigate after query submission", nil)

// onResultsPage checks the URL carries the engine's query parameter, the
// cheapest signal that submission took.
func onResultsPage(page *rod.Page, profile *engine.Profile) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}
	u, err := url.Parse(info.URL)
	if err != nil {
		return false
	}
	return u.Query().Get(profile.QueryParam) != ""
}
