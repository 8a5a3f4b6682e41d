package captcha

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/models"
)

// RotateFunc swaps the session's egress identity. The solver calls it
// once, between the first failed attempt and the retry. Rotation may
// replace the live page, which is why every attempt re-derives its
// challenge handle.
type RotateFunc func(ctx context.Context) error

// Outcome summarizes a resolution attempt for the caller's accounting.
type Outcome struct {
	Solved      bool
	AudioSolved bool
	Escalations int
}

// Solver runs the challenge resolution pipeline: checkbox, audio
// fallback, one egress rotation, one retry. In manual mode it parks
// until an operator acknowledges instead.
type Solver struct {
	mode       string
	settle     time.Duration
	transcribe Transcriber
	download   func(ctx context.Context, audioURL string) (string, error)
	rotate     RotateFunc
	ackCh      chan struct{}

	// OnState, when set, observes every state transition.
	OnState func(State)
}

// NewSolver wires the solver from config. rotate may be nil, in which
// case a failed first attempt is final.
func NewSolver(cfg config.CaptchaConfig, tr Transcriber, fetcher *AudioFetcher, rotate RotateFunc) *Solver {
	return &Solver{
		mode:       cfg.Mode,
		settle:     time.Second,
		transcribe: tr,
		download:   fetcher.Download,
		rotate:     rotate,
		ackCh:      make(chan struct{}, 1),
	}
}

// Acknowledge signals, in manual mode, that the operator has cleared the
// challenge by hand. Safe to call when nothing is waiting.
func (s *Solver) Acknowledge() {
	select {
	case s.ackCh <- struct{}{}:
	default:
	}
}

// Resolve drives the challenge on the session's live page to completion.
// pageFn is re-evaluated per attempt because an egress rotation tears
// the old page down.
func (s *Solver) Resolve(ctx context.Context, pageFn func() *rod.Page) (Outcome, error) {
	return s.resolve(ctx, func() challenge { return newRodChallenge(pageFn()) })
}

func (s *Solver) resolve(ctx context.Context, mk func() challenge) (Outcome, error) {
	s.setState(StateDetected)

	if s.mode == "manual" {
		return s.awaitOperator(ctx, mk())
	}

	var out Outcome
	for attempt := 0; attempt < 2; attempt++ {
		solved, audio := s.attempt(ctx, mk())
		if solved {
			out.Solved = true
			out.AudioSolved = audio
			s.setState(StateSolved)
			return out, nil
		}
		if attempt == 0 && s.rotate != nil {
			slog.Info("challenge attempt failed, rotating egress before retry")
			if err := s.rotate(ctx); err != nil {
				slog.Warn("egress rotation failed", "error", err)
				break
			}
			out.Escalations++
			continue
		}
		break
	}

	s.setState(StateFailed)
	return out, models.NewSearchError(models.ErrCodeCaptchaUnsolved,
		"challenge could not be resolved", nil)
}

// attempt runs one pass of the pipeline. Probe errors are logged and
// downgrade the pass to a failure rather than aborting the caller.
func (s *Solver) attempt(ctx context.Context, ch challenge) (solved, audio bool) {
	// A prior rotation may have dissolved the challenge entirely.
	if ch.Solved() {
		return true, false
	}

	if err := ch.ClickCheckbox(); err != nil {
		slog.Debug("checkbox click failed", "error", err)
	} else {
		s.setState(StateCheckboxClicked)
		s.wait(ctx)
		if ch.Solved() {
			return true, false
		}
	}

	if err := ch.RequestAudio(); err != nil {
		slog.Debug("audio challenge unavailable", "error", err)
		return false, false
	}
	s.setState(StateAudioRequested)
	s.wait(ctx)

	audioURL, err := ch.AudioURL()
	if err != nil {
		slog.Debug("audio URL not found", "error", err)
		return false, false
	}

	path, err := s.download(ctx, audioURL)
	if err != nil {
		slog.Warn("challenge audio download failed", "error", err)
		return false, false
	}
	defer os.Remove(path)
	s.setState(StateAudioDownloaded)

	text, err := s.transcribe.Transcribe(ctx, path)
	if err != nil {
		slog.Warn("transcription failed", "error", err)
		return false, false
	}
	if text == "" {
		slog.Debug("transcriber produced no text")
		return false, false
	}
	s.setState(StateTranscribed)

	if err := ch.EnterResponse(text); err != nil {
		slog.Debug("response entry failed", "error", err)
		return false, false
	}
	if err := ch.Submit(); err != nil {
		slog.Debug("response submit failed", "error", err)
		return false, false
	}
	s.setState(StateSubmitted)
	s.wait(ctx)

	return ch.Solved(), true
}

// awaitOperator blocks until Acknowledge or context expiry, then trusts
// the page state.
func (s *Solver) awaitOperator(ctx context.Context, ch challenge) (Outcome, error) {
	slog.Warn("challenge detected, waiting for manual acknowledgement")
	select {
	case <-s.ackCh:
	case <-ctx.Done():
		s.setState(StateFailed)
		return Outcome{}, models.NewSearchError(models.ErrCodeCaptchaUnsolved,
			"timed out waiting for manual challenge resolution", ctx.Err())
	}
	if ch.Solved() {
		s.setState(StateSolved)
		return Outcome{Solved: true}, nil
	}
	s.setState(StateFailed)
	return Outcome{}, models.NewSearchError(models.ErrCodeCaptchaUnsolved,
		"challenge still present after manual acknowledgement", nil)
}

func (s *Solver) setState(st State) {
	if s.OnState != nil {
		s.OnState(st)
	}
}

func (s *Solver) wait(ctx context.Context) {
	if s.settle <= 0 {
		return
	}
	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
