package browser

import (
	"encoding/base64"
	stdhtml "html"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/use-agent/dorkhound/engine"
	"github.com/use-agent/dorkhound/models"
	"golang.org/x/net/html"
)

// Extract pulls search results off the current page through a layered
// fallback chain: engine-specific selectors, then redirect-wrapped
// anchors, then a raw anchor scrape. Output is deduped on canonical URL
// and normalized title, capped at max.
func Extract(page *rod.Page, profile *engine.Profile, max int) ([]models.SearchResult, error) {
	rawHTML, err := page.HTML()
	if err != nil {
		return nil, models.NewSearchError(models.ErrCodeSearchFailed,
			"failed to snapshot page HTML", err)
	}
	results := ExtractFromHTML(rawHTML, profile, max)
	slog.Info("results extracted", "engine", profile.Name, "count", len(results))
	return results, nil
}

// ExtractFromHTML is the pure extraction pipeline over an HTML snapshot.
func ExtractFromHTML(rawHTML string, profile *engine.Profile, max int) []models.SearchResult {
	dedup := newDeduper(profile, max)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err == nil {
		extractByProfile(doc, profile, dedup)
		if len(dedup.results) == 0 {
			extractRedirectAnchors(doc, profile, dedup)
		}
	}
	if len(dedup.results) == 0 {
		extractRawAnchors(rawHTML, profile, dedup)
	}
	return dedup.results
}

// extractByProfile is layer 1: the engine's own container/link/title
// selectors.
func extractByProfile(doc *goquery.Document, profile *engine.Profile, d *deduper) {
	doc.Find(profile.ResultContainer).Each(func(_ int, s *goquery.Selection) {
		link := s.Find(profile.LinkSelector).First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(s.Find(profile.TitleSelector).First().Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		desc := strings.TrimSpace(s.Find(profile.DescSelector).First().Text())
		d.add(href, title, desc)
	})
}

// extractRedirectAnchors is layer 2: any anchor whose href is an engine
// redirect wrapper, decoded back to the destination.
func extractRedirectAnchors(doc *goquery.Document, profile *engine.Profile, d *deduper) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		dest, ok := DecodeRedirect(href)
		if !ok {
			return
		}
		d.add(dest, strings.TrimSpace(s.Text()), "")
	})
}

// extractRawAnchors is layer 3, the last resort: every absolute anchor in
// the document, internal hosts rejected by the deduper.
func extractRawAnchors(rawHTML string, profile *engine.Profile, d *deduper) {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	var pendingHref string
	var text strings.Builder

	flush := func() {
		if pendingHref != "" {
			d.add(pendingHref, strings.TrimSpace(text.String()), "")
		}
		pendingHref = ""
		text.Reset()
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			flush()
			return
		case html.StartTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" {
				continue
			}
			flush()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				if string(key) == "href" && strings.HasPrefix(string(val), "http") {
					pendingHref = string(val)
				}
			}
		case html.TextToken:
			if pendingHref != "" {
				text.Write(tokenizer.Text())
			}
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); string(name) == "a" {
				flush()
			}
		}
	}
}

// DecodeRedirect unwraps an engine redirect URL. Handles Google's
// /url?q= (and ?url=), DuckDuckGo's uddg=, and Bing's /ck/a?u=a1<base64>.
// Returns the canonical destination and whether href was a wrapper.
func DecodeRedirect(href string) (string, bool) {
	href = stdhtml.UnescapeString(href)
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	q := u.Query()

	if strings.Contains(u.Path, "/url") {
		for _, param := range []string{"q", "url"} {
			if dest := q.Get(param); strings.HasPrefix(dest, "http") {
				return CanonicalURL(dest), true
			}
		}
	}

	if dest := q.Get("uddg"); strings.HasPrefix(dest, "http") {
		return CanonicalURL(dest), true
	}

	if strings.Contains(u.Path, "/ck/a") {
		if enc := q.Get("u"); strings.HasPrefix(enc, "a1") {
			if raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(enc[2:], "=")); err == nil {
				dest := string(raw)
				if strings.HasPrefix(dest, "http") {
					return CanonicalURL(dest), true
				}
			}
		}
	}

	return "", false
}

// CanonicalURL normalizes a URL for comparison and output: HTML entities
// decoded, percent-decoding applied to fixpoint (so double-encoded
// redirect payloads converge), fragment dropped. Idempotent.
func CanonicalURL(raw string) string {
	s := strings.TrimSpace(stdhtml.UnescapeString(raw))
	for i := 0; i < 4; i++ {
		dec, err := url.PathUnescape(s)
		if err != nil || dec == s {
			break
		}
		if !strings.HasPrefix(dec, "http") {
			break
		}
		s = dec
	}
	// Strip the fragment textually: re-serializing through url.Parse would
	// re-encode the path and undo the fixpoint.
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return s
}

// deduper accumulates results, rejecting duplicates and first-party hosts
// in a single pass.
type deduper struct {
	profile    *engine.Profile
	max        int
	seenURLs   map[string]struct{}
	seenTitles map[string]struct{}
	results    []models.SearchResult
}

func newDeduper(profile *engine.Profile, max int) *deduper {
	return &deduper{
		profile:    profile,
		max:        max,
		seenURLs:   make(map[string]struct{}),
		seenTitles: make(map[string]struct{}),
	}
}

func (d *deduper) add(href, title, desc string) {
	if d.max > 0 && len(d.results) >= d.max {
		return
	}

	dest := href
	if unwrapped, ok := DecodeRedirect(href); ok {
		dest = unwrapped
	} else {
		dest = CanonicalURL(href)
	}
	if !strings.HasPrefix(dest, "http") {
		return
	}

	u, err := url.Parse(dest)
	if err != nil || u.Hostname() == "" {
		return
	}
	if isInternalHost(u.Hostname(), d.profile.InternalHosts) {
		slog.Debug("result rejected: first-party host", "url", dest)
		return
	}

	if _, ok := d.seenURLs[dest]; ok {
		return
	}
	normTitle := strings.ToLower(strings.Join(strings.Fields(title), " "))
	if normTitle != "" {
		if _, ok := d.seenTitles[normTitle]; ok {
			return
		}
		d.seenTitles[normTitle] = struct{}{}
	}

	d.seenURLs[dest] = struct{}{}
	d.results = append(d.results, models.SearchResult{
		URL:         dest,
		Title:       title,
		Description: desc,
		Engine:      d.profile.Name,
	})
}

func isInternalHost(host string, internal []string) bool {
	host = strings.ToLower(host)
	for _, h := range internal {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
