package captcha

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Selector probes for known challenge widgets. Checked first because a
// positive DOM hit is the strongest signal.
var challengeSelectors = []string{
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`div.g-recaptcha`,
	`div.h-captcha`,
	`form#captcha-form`,
	`#captcha`,
	`div#cf-challenge-running`,
}

// URL markers for interstitial challenge pages.
var challengeURLMarkers = []string{
	"/sorry/",
	"google.com/sorry",
	"captcha",
	"/challenge",
	"ipv6check",
}

var challengeTitleRe = regexp.MustCompile(`(?i)captcha|unusual traffic|are you a robot|attention required|just a moment|access denied|verify`)

// Body phrases engines put on their rate-limit interstitials. Lowercase;
// matched against lowercased innerText.
var challengeBodyPhrases = []string{
	"unusual traffic",
	"automated queries",
	"verify that you",
	"not a robot",
	"our systems have detected",
	"please complete the security check",
	"solving the above captcha",
}

// Detect reports whether the page is showing an anti-bot challenge.
// Strategies run in order of reliability; every probe treats its own
// error as "not detected" so a flaky page never blocks the caller.
func Detect(page *rod.Page) bool {
	p := page.Timeout(3 * time.Second)

	for _, sel := range challengeSelectors {
		if has, _, err := p.Has(sel); err == nil && has {
			return true
		}
	}

	info, err := p.Info()
	if err != nil {
		return false
	}
	if DetectInURL(info.URL) {
		return true
	}
	if DetectInTitle(info.Title) {
		return true
	}

	res, err := p.Eval(`() => (document.body && document.body.innerText || "").slice(0, 4000)`)
	if err != nil {
		return false
	}
	return DetectInBody(res.Value.Str())
}

// DetectInURL checks the page URL for challenge interstitial markers.
func DetectInURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, marker := range challengeURLMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// DetectInTitle checks the document title for challenge wording.
func DetectInTitle(title string) bool {
	return title != "" && challengeTitleRe.MatchString(title)
}

// DetectInBody checks visible text for the phrases engines use on their
// rate-limit pages.
func DetectInBody(body string) bool {
	lower := strings.ToLower(body)
	for _, phrase := range challengeBodyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
