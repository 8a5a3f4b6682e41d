package captcha

import (
	"errors"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/dorkhound/browser"
)

// challenge is the set of operations the solver drives. Separated from
// the browser so the pipeline can be tested without one.
type challenge interface {
	// ClickCheckbox clicks the "I'm not a robot" checkbox.
	ClickCheckbox() error

	// Solved reports whether the challenge currently reads as passed.
	Solved() bool

	// RequestAudio switches the challenge to its audio variant.
	RequestAudio() error

	// AudioURL returns the downloadable challenge audio URL.
	AudioURL() (string, error)

	// EnterResponse types the transcript into the answer field.
	EnterResponse(text string) error

	// Submit confirms the typed answer.
	Submit() error
}

var errNoChallengeFrame = errors.New("captcha: challenge frame not found")

// rodChallenge drives a reCAPTCHA-style widget on a live page. The
// checkbox lives in the "anchor" iframe, the audio challenge in the
// "bframe" iframe.
type rodChallenge struct {
	page *rod.Page
}

func newRodChallenge(page *rod.Page) *rodChallenge {
	return &rodChallenge{page: page}
}

// frame resolves the sub-document behind an iframe whose src matches
// marker. The widget frames load lazily, so each lookup is re-done.
func (c *rodChallenge) frame(marker string) (*rod.Page, error) {
	el, err := c.page.Timeout(5 * time.Second).Element(`iframe[src*="` + marker + `"]`)
	if err != nil {
		return nil, errNoChallengeFrame
	}
	frame, err := el.Frame()
	if err != nil {
		return nil, errNoChallengeFrame
	}
	return frame, nil
}

func (c *rodChallenge) ClickCheckbox() error {
	anchor, err := c.frame("anchor")
	if err != nil {
		return err
	}
	for _, sel := range []string{"#recaptcha-anchor", ".recaptcha-checkbox-border", ".recaptcha-checkbox"} {
		el, err := anchor.Timeout(4 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		return browser.HumanClick(anchor, el)
	}
	return errNoChallengeFrame
}

func (c *rodChallenge) Solved() bool {
	anchor, err := c.frame("anchor")
	if err != nil {
		// Frame gone entirely usually means the interstitial released us.
		return !Detect(c.page)
	}
	if has, _, err := anchor.Timeout(3 * time.Second).Has(`#recaptcha-anchor[aria-checked="true"]`); err == nil && has {
		return true
	}
	return false
}

func (c *rodChallenge) RequestAudio() error {
	bframe, err := c.frame("bframe")
	if err != nil {
		return err
	}
	btn, err := bframe.Timeout(5 * time.Second).Element("#recaptcha-audio-button")
	if err != nil {
		return err
	}
	return browser.HumanClick(bframe, btn)
}

func (c *rodChallenge) AudioURL() (string, error) {
	bframe, err := c.frame("bframe")
	if err != nil {
		return "", err
	}
	for _, sel := range []string{".rc-audiochallenge-tdownload-link", `a[href*=".mp3"]`} {
		el, err := bframe.Timeout(4 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		href, err := el.Attribute("href")
		if err != nil || href == nil || *href == "" {
			continue
		}
		return *href, nil
	}
	// Some variants only expose the <audio> element's source.
	if el, err := bframe.Timeout(2 * time.Second).Element("audio#audio-source"); err == nil {
		if src, err := el.Attribute("src"); err == nil && src != nil && *src != "" {
			return *src, nil
		}
	}
	return "", errNoChallengeFrame
}

func (c *rodChallenge) EnterResponse(text string) error {
	bframe, err := c.frame("bframe")
	if err != nil {
		return err
	}
	input, err := bframe.Timeout(5 * time.Second).Element("#audio-response")
	if err != nil {
		return err
	}
	browser.SelectAllAndClear(bframe, input)
	browser.HumanType(bframe, input, text)
	return nil
}

func (c *rodChallenge) Submit() error {
	bframe, err := c.frame("bframe")
	if err != nil {
		return err
	}
	btn, err := bframe.Timeout(5 * time.Second).Element("#recaptcha-verify-button")
	if err != nil {
		return err
	}
	if err := browser.HumanClick(bframe, btn); err != nil {
		return err
	}
	time.Sleep(2 * time.Second)
	return nil
}
