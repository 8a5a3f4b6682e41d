package browser

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// moveTimeout bounds one natural-path movement attempt. Past it the raw
// move fallback takes over; the cosmetic layer must never stall the flow.
const moveTimeout = 3 * time.Second

// MoveMouse walks the cursor along a curved path to (x, y). On any error
// or timeout it falls back to a single raw move. Never returns an error:
// pointer movement is cosmetic, not load-bearing.
func MoveMouse(page *rod.Page, x, y float64) {
	ctx, cancel := context.WithTimeout(page.GetContext(), moveTimeout)
	defer cancel()
	p := page.Context(ctx)

	if err := moveNatural(p, x, y); err != nil {
		slog.Debug("natural mouse path failed, using raw move", "error", err)
		_ = page.Mouse.MoveTo(proto.Point{X: x, Y: y})
	}
}

// moveNatural samples a quadratic bezier between the current position and
// the target, with a control point pushed off the straight line, and
// replays it with small per-step delays.
func moveNatural(page *rod.Page, x, y float64) error {
	start := page.Mouse.Position()
	end := proto.Point{X: x, Y: y}

	dist := math.Hypot(end.X-start.X, end.Y-start.Y)
	steps := int(dist/25) + 8
	if steps > 40 {
		steps = 40
	}

	// Control point perpendicular to the path, offset by up to a third of
	// the distance, so the curve bows like a wrist movement.
	midX := (start.X + end.X) / 2
	midY := (start.Y + end.Y) / 2
	offset := (rand.Float64() - 0.5) * dist / 1.5
	ctrl := proto.Point{X: midX - (end.Y-start.Y)/dist*offset, Y: midY + (end.X-start.X)/dist*offset}
	if dist < 1 {
		ctrl = proto.Point{X: midX, Y: midY}
	}

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		// Ease in/out so the cursor accelerates then settles.
		t = t * t * (3 - 2*t)
		inv := 1 - t
		px := inv*inv*start.X + 2*inv*t*ctrl.X + t*t*end.X
		py := inv*inv*start.Y + 2*inv*t*ctrl.Y + t*t*end.Y
		if err := page.Mouse.MoveTo(proto.Point{X: px, Y: py}); err != nil {
			return err
		}
		sleep(page, time.Duration(4+rand.IntN(9))*time.Millisecond)
	}
	return nil
}

// HumanClick moves the pointer onto the element and clicks. Fallback
// order: pointer click → element click → DOM click. Returns an error only
// when every strategy failed.
func HumanClick(page *rod.Page, el *rod.Element) error {
	if err := el.ScrollIntoView(); err != nil {
		slog.Debug("scroll into view failed", "error", err)
	}

	if shape, err := el.Shape(); err == nil {
		if pt := shape.OnePointInside(); pt != nil {
			// Slight jitter so repeated clicks never land on the same pixel.
			MoveMouse(page, pt.X+(rand.Float64()-0.5)*4, pt.Y+(rand.Float64()-0.5)*4)
			sleep(page, time.Duration(40+rand.IntN(120))*time.Millisecond)
			if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err == nil {
				return nil
			}
		}
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}

	// Raw DOM click: last resort for elements obscured by overlays.
	_, err := el.Eval(`() => this.click()`)
	return err
}

// HumanType focuses the element and types text with randomized inter-key
// delay, occasional thinking pauses, and the odd typo that gets corrected
// with backspace. Individual key failures are skipped, not propagated.
func HumanType(page *rod.Page, el *rod.Element, text string) {
	if err := el.Focus(); err != nil {
		if err := HumanClick(page, el); err != nil {
			slog.Debug("could not focus input for typing", "error", err)
		}
	}

	for _, r := range text {
		// ~4% of keystrokes hit a neighboring key first.
		if rand.Float64() < 0.04 {
			typo := string(rune('a' + rand.IntN(26)))
			if err := page.InsertText(typo); err == nil {
				sleep(page, time.Duration(120+rand.IntN(180))*time.Millisecond)
				_ = page.Keyboard.Press(input.Backspace)
				sleep(page, time.Duration(60+rand.IntN(90))*time.Millisecond)
			}
		}

		if err := page.InsertText(string(r)); err != nil {
			slog.Debug("keystroke failed, skipping", "error", err)
			continue
		}
		sleep(page, time.Duration(45+rand.IntN(110))*time.Millisecond)

		// Occasional pause, as if re-reading the query.
		if rand.Float64() < 0.03 {
			sleep(page, time.Duration(350+rand.IntN(900))*time.Millisecond)
		}
	}
}

// SelectAllAndClear empties an input the way a person would: ctrl-a then
// a single delete.
func SelectAllAndClear(page *rod.Page, el *rod.Element) {
	if err := el.SelectAllText(); err == nil {
		if err := el.Input(""); err == nil {
			return
		}
	}
	_, _ = el.Eval(`() => { this.value = "" }`)
}

// sleep waits for d or until the page context is done, whichever first.
func sleep(page *rod.Page, d time.Duration) {
	select {
	case <-time.After(d):
	case <-page.GetContext().Done():
	}
}
