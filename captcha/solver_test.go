package captcha

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeChallenge scripts the widget's behavior for pipeline tests.
type fakeChallenge struct {
	solvedAfterCheckbox bool
	solvedAfterSubmit   bool
	audioURL            string

	checkboxClicks int
	audioRequests  int
	entered        string
	submitted      bool
}

func (f *fakeChallenge) ClickCheckbox() error {
	f.checkboxClicks++
	return nil
}

func (f *fakeChallenge) Solved() bool {
	if f.submitted {
		return f.solvedAfterSubmit
	}
	return f.solvedAfterCheckbox && f.checkboxClicks > 0
}

func (f *fakeChallenge) RequestAudio() error {
	f.audioRequests++
	return nil
}

func (f *fakeChallenge) AudioURL() (string, error) {
	if f.audioURL == "" {
		return "", errNoChallengeFrame
	}
	return f.audioURL, nil
}

func (f *fakeChallenge) EnterResponse(text string) error {
	f.entered = text
	return nil
}

func (f *fakeChallenge) Submit() error {
	f.submitted = true
	return nil
}

type fakeTranscriber struct{ text string }

func (t fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return t.text, nil
}

func newTestSolver(tr Transcriber, rotate RotateFunc) (*Solver, *[]State) {
	var states []State
	s := &Solver{
		mode:       "auto",
		settle:     0,
		transcribe: tr,
		download: func(ctx context.Context, audioURL string) (string, error) {
			return "/nonexistent/challenge.mp3", nil
		},
		rotate: rotate,
		ackCh:  make(chan struct{}, 1),
	}
	s.OnState = func(st State) { states = append(states, st) }
	return s, &states
}

func TestResolve_CheckboxAloneSolves(t *testing.T) {
	ch := &fakeChallenge{solvedAfterCheckbox: true}
	s, states := newTestSolver(fakeTranscriber{}, nil)

	out, err := s.resolve(context.Background(), func() challenge { return ch })
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !out.Solved || out.AudioSolved {
		t.Errorf("outcome = %+v, want solved without audio", out)
	}
	if ch.audioRequests != 0 {
		t.Error("audio must not be requested when the checkbox clears the challenge")
	}
	want := []State{StateDetected, StateCheckboxClicked, StateSolved}
	assertStates(t, *states, want)
}

func TestResolve_AudioPipelineSolves(t *testing.T) {
	ch := &fakeChallenge{audioURL: "https://challenge.example/audio.mp3", solvedAfterSubmit: true}
	s, states := newTestSolver(fakeTranscriber{text: "seven four one"}, nil)

	out, err := s.resolve(context.Background(), func() challenge { return ch })
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !out.Solved || !out.AudioSolved {
		t.Errorf("outcome = %+v, want audio-solved", out)
	}
	if ch.entered != "seven four one" {
		t.Errorf("entered transcript = %q", ch.entered)
	}
	want := []State{
		StateDetected, StateCheckboxClicked, StateAudioRequested,
		StateAudioDownloaded, StateTranscribed, StateSubmitted, StateSolved,
	}
	assertStates(t, *states, want)
}

func TestResolve_EmptyTranscriptEscalatesExactlyOnce(t *testing.T) {
	ch := &fakeChallenge{audioURL: "https://challenge.example/audio.mp3"}
	rotations := 0
	s, states := newTestSolver(fakeTranscriber{text: ""}, func(ctx context.Context) error {
		rotations++
		return nil
	})

	out, err := s.resolve(context.Background(), func() challenge { return ch })
	if err == nil {
		t.Fatal("expected an unresolved-challenge error")
	}
	if rotations != 1 {
		t.Errorf("rotations = %d, want exactly 1", rotations)
	}
	if out.Solved || out.Escalations != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if final := (*states)[len(*states)-1]; final != StateFailed {
		t.Errorf("final state = %v, want failed", final)
	}
}

func TestResolve_RotationErrorStopsRetry(t *testing.T) {
	ch := &fakeChallenge{audioURL: "https://challenge.example/audio.mp3"}
	s, _ := newTestSolver(fakeTranscriber{}, func(ctx context.Context) error {
		return errors.New("no leases left")
	})

	out, err := s.resolve(context.Background(), func() challenge { return ch })
	if err == nil {
		t.Fatal("expected an error")
	}
	if out.Escalations != 0 {
		t.Errorf("escalations = %d, want 0 when rotation itself fails", out.Escalations)
	}
	if ch.audioRequests != 1 {
		t.Errorf("audio requests = %d, want a single attempt", ch.audioRequests)
	}
}

func TestResolve_ManualModeWaitsForAcknowledge(t *testing.T) {
	ch := &fakeChallenge{solvedAfterCheckbox: true, checkboxClicks: 1}
	s, _ := newTestSolver(fakeTranscriber{}, nil)
	s.mode = "manual"

	done := make(chan struct{})
	var out Outcome
	var err error
	go func() {
		out, err = s.resolve(context.Background(), func() challenge { return ch })
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("resolve returned before acknowledgement")
	case <-time.After(50 * time.Millisecond):
	}

	s.Acknowledge()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resolve did not return after acknowledgement")
	}
	if err != nil || !out.Solved {
		t.Errorf("outcome = %+v, err = %v", out, err)
	}
}

func TestResolve_ManualModeContextExpiry(t *testing.T) {
	ch := &fakeChallenge{}
	s, _ := newTestSolver(fakeTranscriber{}, nil)
	s.mode = "manual"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := s.resolve(ctx, func() challenge { return ch }); err == nil {
		t.Fatal("expected a timeout error")
	}
}

func assertStates(t *testing.T, got, want []State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("state sequence %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state[%d] = %v, want %v (full: %v)", i, got[i], want[i], got)
		}
	}
}
