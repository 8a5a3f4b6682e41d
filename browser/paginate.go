package browser

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/dorkhound/engine"
)

// Localized "next" labels seen across engine locales. Single-glyph arrows
// included because Google renders the control as "›" in some layouts.
var nextTexts = []string{
	"next", "next page", "weiter", "nächste", "suivant", "siguiente",
	"volgende", "più", "avanti", "下一页", "次へ", ">", "›", "»",
}

// HasNextPage reports whether a further result page is reachable from the
// current one.
func HasNextPage(page *rod.Page, profile *engine.Profile) bool {
	rawHTML, err := page.HTML()
	if err != nil {
		return false
	}
	_, ok := FindNextHref(rawHTML, pageURL(page), profile)
	if ok {
		return true
	}
	// Last static heuristic failed; a fixed-increment guess still counts
	// if the engine exposes an offset parameter at all.
	return profile.OffsetParam != ""
}

// GotoNextPage advances to the next result page: synthetic click on the
// resolved anchor first, direct navigation on its href if the click does
// not produce a navigation within the timeout. Returns whether the page
// moved.
func GotoNextPage(ctx context.Context, page *rod.Page, profile *engine.Profile, navTimeout time.Duration) bool {
	p := page.Context(ctx)
	before := pageURL(p)

	rawHTML, err := p.HTML()
	if err != nil {
		return false
	}

	href, ok := FindNextHref(rawHTML, before, profile)
	if !ok {
		href, ok = nextByViewportPosition(p)
	}
	if !ok {
		href, ok = guessNextByIncrement(before, profile)
	}
	if !ok {
		return false
	}

	resolved := resolveHref(before, href)

	// Click route: the anchor carrying exactly this href.
	if el, err := p.Timeout(3 * time.Second).Element(`a[href="` + href + `"]`); err == nil {
		wait := p.Timeout(navTimeout).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
		if err := HumanClick(p, el); err == nil {
			wait()
			if after := pageURL(p); after != before && after != "" {
				slog.Debug("pagination via click", "url", after)
				return true
			}
		}
	}

	// Direct navigation fallback.
	if err := navigate(p, resolved, navTimeout); err != nil {
		slog.Debug("pagination navigation failed", "href", resolved, "error", err)
		return false
	}
	after := pageURL(p)
	if after == before || after == "" {
		return false
	}
	slog.Debug("pagination via goto", "url", after)
	return true
}

// FindNextHref analyzes an HTML snapshot for the next-page link, in
// priority order: localized next-label anchors whose offset exceeds the
// current one, then plain offset analysis (smallest offset greater than
// current), then aria-label/id attribute heuristics.
func FindNextHref(rawHTML, currentURL string, profile *engine.Profile) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}
	current := currentOffset(currentURL, profile.OffsetParam)

	type anchor struct {
		href, text, aria, id string
		offset               int
		hasOffset            bool
	}
	var anchors []anchor
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		aria, _ := s.Attr("aria-label")
		id, _ := s.Attr("id")
		a := anchor{
			href: href,
			text: strings.ToLower(strings.TrimSpace(s.Text())),
			aria: strings.ToLower(aria),
			id:   strings.ToLower(id),
		}
		if off, ok := hrefOffset(href, profile.OffsetParam); ok {
			a.offset, a.hasOffset = off, true
		}
		anchors = append(anchors, a)
	})

	// (a) localized next-label with a greater offset than the current page.
	for _, a := range anchors {
		if !a.hasOffset || a.offset <= current {
			continue
		}
		for _, label := range nextTexts {
			if a.text == label {
				return a.href, true
			}
		}
	}

	// (b) smallest offset strictly greater than current.
	best := ""
	bestOffset := -1
	for _, a := range anchors {
		if !a.hasOffset || a.offset <= current {
			continue
		}
		if bestOffset == -1 || a.offset < bestOffset {
			best, bestOffset = a.href, a.offset
		}
	}
	if best != "" {
		return best, true
	}

	// (e) attribute heuristics: pagination controls keep stable ids and
	// aria labels even when their text is an icon.
	for _, a := range anchors {
		if strings.Contains(a.aria, "next") || strings.Contains(a.aria, "weiter") ||
			a.id == "pnnext" || strings.Contains(a.id, "next") {
			return a.href, true
		}
	}

	return "", false
}

// nextByViewportPosition is heuristic (c): an anchor near the bottom of
// the document with very short text is almost always the pager.
func nextByViewportPosition(page *rod.Page) (string, bool) {
	res, err := page.Timeout(3 * time.Second).Eval(`() => {
		const docHeight = document.documentElement.scrollHeight;
		for (const a of document.querySelectorAll("a[href]")) {
			const rect = a.getBoundingClientRect();
			const absTop = rect.top + window.scrollY;
			const text = (a.innerText || "").trim();
			if (absTop > docHeight * 0.8 && text.length > 0 && text.length <= 3) {
				return a.href;
			}
		}
		return "";
	}`)
	if err != nil {
		return "", false
	}
	href := res.Value.Str()
	return href, href != ""
}

// guessNextByIncrement is heuristic (d): construct the next URL from the
// engine's offset parameter and the common fixed steps.
func guessNextByIncrement(currentURL string, profile *engine.Profile) (string, bool) {
	if profile.OffsetParam == "" {
		return "", false
	}
	u, err := url.Parse(currentURL)
	if err != nil {
		return "", false
	}
	current := currentOffset(currentURL, profile.OffsetParam)

	step := profile.PageStep
	if step <= 0 {
		step = 10 // the most common engine page size
	}
	q := u.Query()
	q.Set(profile.OffsetParam, strconv.Itoa(current+step))
	u.RawQuery = q.Encode()
	return u.String(), true
}

func currentOffset(rawURL, param string) int {
	off, ok := hrefOffset(rawURL, param)
	if !ok {
		return 0
	}
	return off
}

func hrefOffset(href, param string) (int, bool) {
	if param == "" {
		return 0, false
	}
	u, err := url.Parse(href)
	if err != nil {
		return 0, false
	}
	v := u.Query().Get(param)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func resolveHref(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	r, err := b.Parse(href)
	if err != nil {
		return href
	}
	return r.String()
}
