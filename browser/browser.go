// Package browser owns the session primitives: launching a stealth-patched
// Chromium, preparing pages, human-like input, consent handling, query
// submission, result extraction and pagination. Nothing here knows about
// sessions or CAPTCHA policy; it operates on one page at a time.
package browser

import (
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/models"
	"github.com/use-agent/dorkhound/proxy"
	"github.com/ysmood/gson"
)

// Browser wraps one Chromium process and its control connection.
type Browser struct {
	rod      *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
}

// Launch starts a browser with the anti-fingerprinting flag set and, when
// a lease is given, routes all traffic through it.
func Launch(cfg config.BrowserConfig, lease *proxy.Lease) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if lease != nil {
		l = l.Proxy(lease.Addr())
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "en-US,en")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewSearchError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "proxied", lease != nil)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewSearchError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	if lease != nil && lease.Username != "" {
		go func() {
			if err := b.HandleAuth(lease.Username, lease.Password)(); err != nil &&
				!strings.Contains(err.Error(), "context canceled") {
				slog.Debug("proxy auth handler exited", "error", err)
			}
		}()
	}

	return &Browser{rod: b, launcher: l, cfg: cfg}, nil
}

// NewPage creates a page with the stealth patch, viewport/UA overrides,
// the request-interception policy and the console noise filter installed.
// All of this must run before the first navigation to take effect.
func (b *Browser) NewPage() (*rod.Page, error) {
	page, err := b.rod.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewSearchError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	if b.cfg.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent:      b.cfg.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		}.Call(page)
	}

	if b.cfg.ViewportWidth > 0 && b.cfg.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.ViewportWidth,
			Height:            b.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Accept-Language": gson.New("en-US,en;q=0.9"),
		},
	}.Call(page)

	mountInterception(page, b.cfg.AllowImages)
	mountConsoleFilter(page)

	return page, nil
}

// Close kills the browser process. Pages die with it.
func (b *Browser) Close() {
	if err := b.rod.Close(); err != nil {
		slog.Debug("browser close", "error", err)
	}
	b.launcher.Kill()
	slog.Info("browser closed")
}

// consoleNoise lists substrings of console/error messages produced by the
// engines' own scripts; they drown real signal if logged.
var consoleNoise = []string{
	"gen_204",
	"recaptcha",
	"Content Security Policy",
	"Tracking Prevention",
	"net::ERR_BLOCKED_BY_CLIENT",
	"deprecated",
	"third-party cookie",
}

// mountConsoleFilter forwards page console errors to slog at debug level,
// dropping known first-party script noise entirely.
func mountConsoleFilter(page *rod.Page) {
	go page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		if e.Type != proto.RuntimeConsoleAPICalledTypeError &&
			e.Type != proto.RuntimeConsoleAPICalledTypeWarning {
			return
		}
		var parts []string
		for _, arg := range e.Args {
			parts = append(parts, arg.Value.String())
		}
		msg := strings.Join(parts, " ")
		for _, noise := range consoleNoise {
			if strings.Contains(msg, noise) {
				return
			}
		}
		slog.Debug("page console", "type", string(e.Type), "msg", msg)
	})()
}
