package models

// MonitorStats are the running counters owned by the session watchdog.
// They accumulate for the lifetime of the process and reset only on
// explicit request.
type MonitorStats struct {
	CaptchasDetected int64 `json:"captchas_detected"`
	CaptchasSolved   int64 `json:"captchas_solved"`
	CaptchasFailed   int64 `json:"captchas_failed"`
	AudioSolved      int64 `json:"audio_solved"`
	ProxySwitches    int64 `json:"proxy_switches"`
}
