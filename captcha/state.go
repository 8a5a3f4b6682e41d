package captcha

// State tracks a challenge resolution attempt through its lifecycle.
type State int

const (
	StateIdle State = iota
	StateDetected
	StateCheckboxClicked
	StateAudioRequested
	StateAudioDownloaded
	StateTranscribed
	StateSubmitted
	StateSolved
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateDetected:        "detected",
	StateCheckboxClicked: "checkbox_clicked",
	StateAudioRequested:  "audio_requested",
	StateAudioDownloaded: "audio_downloaded",
	StateTranscribed:     "transcribed",
	StateSubmitted:       "submitted",
	StateSolved:          "solved",
	StateFailed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
