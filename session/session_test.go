package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/use-agent/dorkhound/captcha"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/models"
	"github.com/use-agent/dorkhound/proxy"
)

// fakeProvisioner records the acquire/release call order.
type fakeProvisioner struct {
	next     int
	events   []string
	acquires int
	failNext bool
	disabled bool
}

func (f *fakeProvisioner) Acquire(ctx context.Context) (*proxy.Lease, error) {
	if f.failNext {
		f.failNext = false
		return nil, errors.New("pool exhausted")
	}
	f.next++
	f.acquires++
	id := fmt.Sprintf("lease-%d", f.next)
	f.events = append(f.events, "acquire "+id)
	return &proxy.Lease{ID: id, Host: "10.0.0.1", Port: 8000 + f.next}, nil
}

func (f *fakeProvisioner) Release(ctx context.Context, id string) error {
	f.events = append(f.events, "release "+id)
	return nil
}

func (f *fakeProvisioner) Disabled() bool { return f.disabled }

func newTestController(prov *fakeProvisioner) *Controller {
	cfg := &config.Config{}
	cfg.Search.RestartThreshold = 5
	c := NewController(cfg, prov)
	// No real browser in tests: rebuild just installs the lease.
	c.rebuild = func(ctx context.Context, lease *proxy.Lease) error {
		c.sess = &liveSession{lease: lease}
		return nil
	}
	return c
}

func TestRotateLease_AcquireBeforeRelease(t *testing.T) {
	prov := &fakeProvisioner{}
	c := newTestController(prov)
	c.sess = &liveSession{lease: &proxy.Lease{ID: "lease-old"}}

	if err := c.rotateLeaseLocked(context.Background()); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	want := []string{"acquire lease-1", "release lease-old"}
	if len(prov.events) != len(want) {
		t.Fatalf("events = %v, want %v", prov.events, want)
	}
	for i := range want {
		if prov.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", prov.events, want)
		}
	}
	if c.sess.lease.ID != "lease-1" {
		t.Errorf("live lease = %q, want lease-1", c.sess.lease.ID)
	}
	if c.stats.Snapshot().ProxySwitches != 1 {
		t.Error("rotation must count one proxy switch")
	}
}

func TestRotateLease_RebuildFailureReleasesNewLeaseOnly(t *testing.T) {
	prov := &fakeProvisioner{}
	c := newTestController(prov)
	old := &proxy.Lease{ID: "lease-old"}
	c.sess = &liveSession{lease: old}
	c.rebuild = func(ctx context.Context, lease *proxy.Lease) error {
		return errors.New("browser launch failed")
	}

	if err := c.rotateLeaseLocked(context.Background()); err == nil {
		t.Fatal("expected rebuild failure to surface")
	}

	want := []string{"acquire lease-1", "release lease-1"}
	for i := range want {
		if i >= len(prov.events) || prov.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", prov.events, want)
		}
	}
	if c.sess.lease != old {
		t.Error("old lease must stay live when rebuild fails")
	}
	if c.stats.Snapshot().ProxySwitches != 0 {
		t.Error("a failed rotation is not a proxy switch")
	}
}

func TestRotateLease_UnavailableWithoutProvisioner(t *testing.T) {
	cfg := &config.Config{}
	c := NewController(cfg, nil)
	if err := c.rotateLeaseLocked(context.Background()); err == nil {
		t.Fatal("rotation without a provisioner must fail")
	}
}

func TestRotateLease_DisabledProvisioner(t *testing.T) {
	prov := &fakeProvisioner{disabled: true}
	c := newTestController(prov)
	if err := c.rotateLeaseLocked(context.Background()); err == nil {
		t.Fatal("rotation on a disabled provisioner must fail")
	}
	if prov.acquires != 0 {
		t.Error("disabled provisioner must not be asked for a lease")
	}
}

func TestRestart_SwapsLeaseAndResetsCount(t *testing.T) {
	prov := &fakeProvisioner{}
	c := newTestController(prov)
	c.sess = &liveSession{lease: &proxy.Lease{ID: "lease-old"}, searches: 5}

	if err := c.restartLocked(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if c.sess.searches != 0 {
		t.Errorf("search count = %d after restart, want 0", c.sess.searches)
	}
	want := []string{"acquire lease-1", "release lease-old"}
	for i := range want {
		if i >= len(prov.events) || prov.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", prov.events, want)
		}
	}
}

func TestRestart_AcquireFailureKeepsRunningDirect(t *testing.T) {
	prov := &fakeProvisioner{failNext: true}
	c := newTestController(prov)
	c.sess = &liveSession{lease: &proxy.Lease{ID: "lease-old"}, searches: 5}

	if err := c.restartLocked(context.Background()); err != nil {
		t.Fatalf("restart must degrade to direct, got: %v", err)
	}
	if c.sess.lease != nil {
		t.Errorf("live lease = %v, want nil (direct connection)", c.sess.lease)
	}
	// The old lease still goes back to the pool.
	found := false
	for _, e := range prov.events {
		if e == "release lease-old" {
			found = true
		}
	}
	if !found {
		t.Errorf("old lease never released: %v", prov.events)
	}
}

// scriptedGate plays back canned submit errors and detection outcomes,
// recording how often the gate calls each.
type scriptedGate struct {
	submitErrs []error
	detects    []bool
	outcome    captcha.Outcome
	resolveErr error

	submits  int
	resolves int
}

func (g *scriptedGate) funcs() gateFuncs {
	return gateFuncs{
		submit: func() error {
			err := g.submitErrs[g.submits]
			g.submits++
			return err
		},
		detect: func() bool {
			return g.detects[g.submits-1]
		},
		resolve: func(ctx context.Context) (captcha.Outcome, error) {
			g.resolves++
			return g.outcome, g.resolveErr
		},
	}
}

func TestSubmitGate_InterstitialBeforeSubmission(t *testing.T) {
	// Navigation lands on a challenge page: submission fails because the
	// search box never appears, but the challenge on the page must be
	// resolved and the query resubmitted, not reported as a failure.
	g := &scriptedGate{
		submitErrs: []error{errors.New("search box not found"), nil},
		detects:    []bool{true, false},
		outcome:    captcha.Outcome{Solved: true},
	}

	if err := runSubmitGate(context.Background(), "google", g.funcs()); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if g.resolves != 1 {
		t.Errorf("resolutions = %d, want 1", g.resolves)
	}
	if g.submits != 2 {
		t.Errorf("submissions = %d, want a resubmit after resolution", g.submits)
	}
}

func TestSubmitGate_SubmitErrorWithoutChallenge(t *testing.T) {
	boom := errors.New("engine unreachable")
	g := &scriptedGate{
		submitErrs: []error{boom},
		detects:    []bool{false},
	}

	if err := runSubmitGate(context.Background(), "google", g.funcs()); !errors.Is(err, boom) {
		t.Fatalf("gate error = %v, want the submission error unchanged", err)
	}
	if g.resolves != 0 {
		t.Error("no challenge on the page, nothing to resolve")
	}
}

func TestSubmitGate_SolvedInPlaceSkipsResubmit(t *testing.T) {
	g := &scriptedGate{
		submitErrs: []error{nil},
		detects:    []bool{true},
		outcome:    captcha.Outcome{Solved: true},
	}

	if err := runSubmitGate(context.Background(), "bing", g.funcs()); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if g.submits != 1 {
		t.Errorf("submissions = %d, want 1 when the widget clears in place", g.submits)
	}
}

func TestSubmitGate_EscalationResubmits(t *testing.T) {
	g := &scriptedGate{
		submitErrs: []error{nil, nil},
		detects:    []bool{true, false},
		outcome:    captcha.Outcome{Solved: true, Escalations: 1},
	}

	if err := runSubmitGate(context.Background(), "google", g.funcs()); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if g.submits != 2 {
		t.Errorf("submissions = %d, want a resubmit after rotation", g.submits)
	}
}

func TestSubmitGate_PersistentChallengeFails(t *testing.T) {
	g := &scriptedGate{
		submitErrs: []error{errors.New("no search box"), errors.New("no search box")},
		detects:    []bool{true, true},
		outcome:    captcha.Outcome{Solved: true},
	}

	err := runSubmitGate(context.Background(), "google", g.funcs())
	var serr *models.SearchError
	if !errors.As(err, &serr) || serr.Code != models.ErrCodeCaptchaUnsolved {
		t.Fatalf("gate error = %v, want CAPTCHA_UNSOLVED", err)
	}
	if g.submits != 2 {
		t.Errorf("submissions = %d, want exactly one retry", g.submits)
	}
}

func TestSubmitGate_UnsolvedChallengeFails(t *testing.T) {
	g := &scriptedGate{
		submitErrs: []error{nil},
		detects:    []bool{true},
		outcome:    captcha.Outcome{Solved: false},
	}

	err := runSubmitGate(context.Background(), "duckduckgo", g.funcs())
	var serr *models.SearchError
	if !errors.As(err, &serr) || serr.Code != models.ErrCodeCaptchaUnsolved {
		t.Fatalf("gate error = %v, want CAPTCHA_UNSOLVED", err)
	}
}

func TestStatsResetZeroesCounters(t *testing.T) {
	s := &Stats{}
	s.captchasDetected.Add(3)
	s.recordResolution(true, true)
	s.recordResolution(false, false)
	s.proxySwitches.Add(2)

	snap := s.Snapshot()
	if snap.CaptchasDetected != 3 || snap.CaptchasSolved != 1 ||
		snap.AudioSolved != 1 || snap.CaptchasFailed != 1 || snap.ProxySwitches != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	s.Reset()
	zero := s.Snapshot()
	if zero.CaptchasDetected != 0 || zero.CaptchasSolved != 0 ||
		zero.AudioSolved != 0 || zero.CaptchasFailed != 0 || zero.ProxySwitches != 0 {
		t.Errorf("counters not zeroed: %+v", zero)
	}
}
