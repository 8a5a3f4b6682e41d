package session

import (
	"sync/atomic"

	"github.com/use-agent/dorkhound/models"
)

// Stats are the process-lifetime counters behind GET /api/v1/stats.
// All fields are updated atomically; Snapshot gives a consistent-enough
// read for reporting.
type Stats struct {
	captchasDetected atomic.Int64
	captchasSolved   atomic.Int64
	captchasFailed   atomic.Int64
	audioSolved      atomic.Int64
	proxySwitches    atomic.Int64
}

func (s *Stats) Snapshot() models.MonitorStats {
	return models.MonitorStats{
		CaptchasDetected: s.captchasDetected.Load(),
		CaptchasSolved:   s.captchasSolved.Load(),
		CaptchasFailed:   s.captchasFailed.Load(),
		AudioSolved:      s.audioSolved.Load(),
		ProxySwitches:    s.proxySwitches.Load(),
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.captchasDetected.Store(0)
	s.captchasSolved.Store(0)
	s.captchasFailed.Store(0)
	s.audioSolved.Store(0)
	s.proxySwitches.Store(0)
}

// recordResolution folds one challenge resolution into the counters.
func (s *Stats) recordResolution(solved, audio bool) {
	if !solved {
		s.captchasFailed.Add(1)
		return
	}
	s.captchasSolved.Add(1)
	if audio {
		s.audioSolved.Add(1)
	}
}
