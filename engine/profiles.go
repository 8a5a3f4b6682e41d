// Package engine holds the static search-engine profiles: where to
// navigate, which selectors to probe, and the per-engine quirks the
// browser layer needs. Profiles are the contract a new engine must
// satisfy to be pluggable.
package engine

import (
	"fmt"
	"time"

	"github.com/andybalholm/cascadia"
)

// Profile is the immutable descriptor of one supported search engine.
type Profile struct {
	Name    string
	BaseURL string

	// QueryParam is the URL parameter carrying the query (used when the
	// search box cannot be driven and navigation falls back to a GET).
	QueryParam string

	// SearchBoxSelectors is the ordered fallback chain for the input box.
	SearchBoxSelectors []string

	// SubmitButtonSelectors is tried after Enter fails (Bing needs this).
	SubmitButtonSelectors []string

	// ReadySelector signals that the page is usable (not a fixed sleep).
	ReadySelector string

	// Result extraction selectors, relative to ResultContainer.
	ResultContainer string
	LinkSelector    string
	TitleSelector   string
	DescSelector    string

	// WaitTime is the settle delay after result navigation.
	WaitTime time.Duration

	// OffsetParam and PageStep describe the pagination offset parameter
	// ("start" stepping by 10 for Google).
	OffsetParam string
	PageStep    int

	// InternalHosts are first-party hosts whose links are never results.
	InternalHosts []string

	// ConsentDismissJS, when non-empty, is evaluated after navigation to
	// clear the engine's own cookie banner.
	ConsentDismissJS string
}

// Profiles is the static registry, loaded once at startup.
var Profiles = map[string]*Profile{
	"google": {
		Name:       "google",
		BaseURL:    "https://www.google.com",
		QueryParam: "q",
		SearchBoxSelectors: []string{
			`textarea[name="q"]`,
			`input[name="q"]`,
			`textarea[title="Search"]`,
			`[role="combobox"]`,
		},
		ReadySelector:   `form[action="/search"], textarea[name="q"], input[name="q"]`,
		ResultContainer: `div.g, div[data-sokoban-container], div.MjjYud`,
		LinkSelector:    `a[href]`,
		TitleSelector:   `h3`,
		DescSelector:    `div[data-sncf], div.VwiC3b, span.aCOpRe`,
		WaitTime:        1500 * time.Millisecond,
		OffsetParam:     "start",
		PageStep:        10,
		InternalHosts: []string{
			"google.com", "gstatic.com", "googleusercontent.com",
			"youtube.com", "webcache.googleusercontent.com",
		},
	},
	"bing": {
		Name:       "bing",
		BaseURL:    "https://www.bing.com",
		QueryParam: "q",
		SearchBoxSelectors: []string{
			`input[name="q"]`,
			`textarea[name="q"]`,
			`#sb_form_q`,
		},
		SubmitButtonSelectors: []string{
			`#search_icon`,
			`label[for="sb_form_go"]`,
			`input[type="submit"]`,
		},
		ReadySelector:   `#sb_form_q, input[name="q"]`,
		ResultContainer: `li.b_algo`,
		LinkSelector:    `h2 a[href]`,
		TitleSelector:   `h2`,
		DescSelector:    `div.b_caption p, p.b_lineclamp2`,
		WaitTime:        1200 * time.Millisecond,
		OffsetParam:     "first",
		PageStep:        10,
		InternalHosts:   []string{"bing.com", "microsoft.com", "msn.com", "live.com"},
		ConsentDismissJS: `() => {
			const btn = document.querySelector('#bnp_btn_accept, button.bnp_btn_accept');
			if (btn) { btn.click(); return true; }
			return false;
		}`,
	},
	"duckduckgo": {
		Name:       "duckduckgo",
		BaseURL:    "https://duckduckgo.com",
		QueryParam: "q",
		SearchBoxSelectors: []string{
			`input[name="q"]`,
			`#searchbox_input`,
			`#search_form_input_homepage`,
		},
		ReadySelector:   `input[name="q"], #searchbox_input`,
		ResultContainer: `article[data-testid="result"], div.result`,
		LinkSelector:    `a[data-testid="result-title-a"], h2 a[href]`,
		TitleSelector:   `h2`,
		DescSelector:    `div[data-result="snippet"], a.result__snippet`,
		WaitTime:        1000 * time.Millisecond,
		OffsetParam:     "s",
		PageStep:        25,
		InternalHosts:   []string{"duckduckgo.com", "duck.com"},
	},
}

// ByName resolves engine names to profiles, skipping unknown names.
func ByName(names []string) []*Profile {
	out := make([]*Profile, 0, len(names))
	for _, n := range names {
		if p, ok := Profiles[n]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Validate parses every CSS selector in every profile with cascadia so a
// typo in the registry fails at startup instead of mid-session.
func Validate() error {
	for name, p := range Profiles {
		selectors := append([]string{}, p.SearchBoxSelectors...)
		selectors = append(selectors, p.SubmitButtonSelectors...)
		selectors = append(selectors,
			p.ReadySelector, p.ResultContainer, p.LinkSelector,
			p.TitleSelector, p.DescSelector)
		for _, sel := range selectors {
			if sel == "" {
				continue
			}
			if _, err := cascadia.ParseGroup(sel); err != nil {
				return fmt.Errorf("engine %s: bad selector %q: %w", name, sel, err)
			}
		}
	}
	return nil
}
