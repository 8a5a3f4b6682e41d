package browser

import (
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Consent wall indicators. The German variant matters: Google serves
// consent.google.com localized by egress IP, and German exits are common
// in datacenter proxy pools.
var consentPhrases = []string{
	"before you continue",
	"bevor sie fortfahren",
	"we use cookies",
	"accept all",
	"alle akzeptieren",
	"uses cookies and data",
}

var consentURLMarkers = []string{
	"consent.google.com",
	"consent.youtube.com",
}

// Attribute-based candidates tried before the text route. Kept short:
// attribute names on consent walls are obfuscated and churn often.
var consentButtonSelectors = []string{
	`button#L2AGLb`,
	`button[aria-label="Accept all"]`,
	`form[action*="consent"] button`,
	`#bnp_btn_accept`,
}

// consentButtonText locates buttons by their visible label, the only
// stable handle on consent.google.com where attributes are obfuscated.
const consentButtonText = `/^(accept all|i agree|alle akzeptieren|reject all)$/i`

// OnConsentWall reports whether the page currently shows a consent
// interstitial. Detection errors count as "no wall".
func OnConsentWall(page *rod.Page) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}
	for _, marker := range consentURLMarkers {
		if strings.Contains(info.URL, marker) {
			return true
		}
	}

	res, err := page.Timeout(3 * time.Second).Eval(`() => document.body ? document.body.innerText.slice(0, 4000) : ""`)
	if err != nil {
		return false
	}
	body := strings.ToLower(res.Value.Str())
	for _, phrase := range consentPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

// HandleConsent dismisses a consent wall if one is showing. Up to three
// attempts; each clicks a candidate button and verifies the wall is gone.
// Gives up without error: the caller decides whether a still-standing
// wall is fatal for the engine.
func HandleConsent(page *rod.Page) bool {
	if !OnConsentWall(page) {
		return true
	}
	slog.Info("consent wall detected", "url", pageURL(page))

	for attempt := 1; attempt <= 3; attempt++ {
		clicked := clickConsentButton(page)
		if clicked {
			sleep(page, 1500*time.Millisecond)
		} else {
			sleep(page, 700*time.Millisecond)
		}

		if !OnConsentWall(page) {
			slog.Info("consent wall dismissed", "attempt", attempt)
			return true
		}
	}

	slog.Warn("consent wall persisted after 3 attempts, may need manual intervention",
		"url", pageURL(page))
	return false
}

func clickConsentButton(page *rod.Page) bool {
	p := page.Timeout(4 * time.Second)

	for _, sel := range consentButtonSelectors {
		el, err := p.Element(sel)
		if err != nil {
			continue
		}
		if err := HumanClick(page, el); err == nil {
			slog.Debug("consent button clicked", "selector", sel)
			return true
		}
	}

	// Text route: exact label match, attributes untrusted.
	if el, err := p.ElementR("button", consentButtonText); err == nil {
		if err := HumanClick(page, el); err == nil {
			slog.Debug("consent button clicked by label")
			return true
		}
	}
	// Some walls render the button as a link or div.
	if el, err := p.ElementR(`[role="button"], a`, consentButtonText); err == nil {
		if err := HumanClick(page, el); err == nil {
			slog.Debug("consent control clicked by label")
			return true
		}
	}
	return false
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
