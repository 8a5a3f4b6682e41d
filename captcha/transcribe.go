package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/use-agent/dorkhound/config"
)

// Transcriber converts challenge audio to text. An empty result with a
// nil error means "no transcript available"; the solver treats it as a
// failed attempt, not a hard error.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// NewTranscriber picks an implementation from config. Without an API
// endpoint the no-op transcriber is returned and audio solving always
// escalates.
func NewTranscriber(cfg config.TranscribeConfig) Transcriber {
	if cfg.APIURL == "" || cfg.APIKey == "" {
		return noopTranscriber{}
	}
	return &httpTranscriber{
		apiURL:   cfg.APIURL,
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type noopTranscriber struct{}

func (noopTranscriber) Transcribe(context.Context, string) (string, error) { return "", nil }

// httpTranscriber posts raw audio to a speech-to-text endpoint and reads
// the transcript from the JSON response.
type httpTranscriber struct {
	apiURL   string
	apiKey   string
	language string
	client   *http.Client
}

func (t *httpTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, f)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "audio/mpeg")
	if t.language != "" {
		req.Header.Set("Accept-Language", t.language)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("transcription API rejected audio", "status", resp.StatusCode)
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}
	return parseTranscript(body), nil
}

// parseTranscript handles both single-object and streamed (one JSON
// object per chunk) response shapes, keeping the last final text.
func parseTranscript(body []byte) string {
	type chunk struct {
		Text string `json:"text"`
	}

	dec := json.NewDecoder(strings.NewReader(string(body)))
	text := ""
	for {
		var c chunk
		if err := dec.Decode(&c); err != nil {
			break
		}
		if strings.TrimSpace(c.Text) != "" {
			text = strings.TrimSpace(c.Text)
		}
	}
	return text
}
