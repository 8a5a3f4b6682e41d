package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// firstPartyCDNs are hosts the engines load essential assets from. Blocking
// them breaks result rendering or trips bot heuristics, so they are always
// allowed regardless of resource type.
var firstPartyCDNs = map[string]struct{}{
	"gstatic.com":           {},
	"googleapis.com":        {},
	"google.com":            {},
	"recaptcha.net":         {},
	"bing.com":              {},
	"bingapis.com":          {},
	"msn.com":               {},
	"microsoft.com":         {},
	"duckduckgo.com":        {},
	"external-content.duckduckgo.com": {},
}

func isFirstPartyCDN(host string) bool {
	host = strings.ToLower(host)
	if _, ok := firstPartyCDNs[host]; ok {
		return true
	}
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
		if _, ok := firstPartyCDNs[host]; ok {
			return true
		}
	}
}

// mountInterception installs the request policy on the page:
//
//   - Document/Script/Stylesheet/Font/XHR/Fetch: allowed
//   - Image: allowed only when allowImages is set or the host is a
//     first-party CDN (reCAPTCHA image tiles must load)
//   - Media and everything else: blocked
//
// Returns the running router so teardown can stop it; pages are usually
// closed with the browser, so callers may ignore it.
func mountInterception(page *rod.Page, allowImages bool) *rod.HijackRouter {
	router := page.HijackRequests()

	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		switch ctx.Request.Type() {
		case proto.NetworkResourceTypeDocument,
			proto.NetworkResourceTypeScript,
			proto.NetworkResourceTypeStylesheet,
			proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeXHR,
			proto.NetworkResourceTypeFetch:
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
			return

		case proto.NetworkResourceTypeImage:
			if allowImages {
				ctx.ContinueRequest(&proto.FetchContinueRequest{})
				return
			}
			if isFirstPartyCDN(ctx.Request.URL().Hostname()) {
				ctx.ContinueRequest(&proto.FetchContinueRequest{})
				return
			}
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return

		default:
			// Media, websockets, pings, everything exotic.
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
	})

	// router.Run() blocks, so it must live in its own goroutine.
	go router.Run()

	return router
}
