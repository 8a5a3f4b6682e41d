package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Search     SearchConfig
	Captcha    CaptchaConfig
	Proxy      ProxyConfig
	Transcribe TranscribeConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// UserAgent overrides the browser user agent. Empty keeps Chrome's own.
	UserAgent string

	// ViewportWidth/ViewportHeight set the emulated viewport.
	ViewportWidth  int // default: 1366
	ViewportHeight int // default: 768

	// AllowImages lets image requests through the interception policy.
	// Some engines fingerprint on missing images; off by default for speed.
	AllowImages bool // default: false
}

// SearchConfig controls search orchestration.
type SearchConfig struct {
	// MaxResults is the default per-engine extraction cap.
	MaxResults int // default: 30

	// RestartThreshold is the number of performSearch calls before the
	// session is torn down and rebuilt under a fresh egress.
	RestartThreshold int // default: 5

	// NavigationTimeout is the max time for a single page navigation.
	NavigationTimeout time.Duration // default: 30s

	// ElementTimeout is the max time to wait for one selector probe.
	ElementTimeout time.Duration // default: 5s

	// QueriesPerMinute paces performSearch calls. 0 disables pacing.
	QueriesPerMinute float64 // default: 6
}

// CaptchaConfig controls the CAPTCHA gate and the background watchdog.
type CaptchaConfig struct {
	// Mode is "auto" (audio pipeline) or "manual" (operator acknowledges).
	Mode string // default: "auto"

	// WatchdogInterval is the background detection poll interval.
	WatchdogInterval time.Duration // default: 2s

	// AudioDir is where challenge audio is downloaded. Empty uses os.TempDir.
	AudioDir string
}

// ProxyConfig controls the proxy provisioning API client.
type ProxyConfig struct {
	// Enabled toggles proxy leasing and rotation.
	Enabled bool // default: false

	// APIBase is the provisioning API base URL, e.g. "https://proxies.example/api".
	APIBase string

	// APIKey authenticates against the provisioning API.
	APIKey string

	// LeaseType is the requested lease type ("residential", "datacenter").
	LeaseType string // default: "residential"
}

// TranscribeConfig controls the speech-to-text collaborator.
type TranscribeConfig struct {
	// APIURL is the transcription endpoint. Empty disables transcription
	// (the solver falls back to the no-op transcriber).
	APIURL string

	// APIKey is the bearer token for the transcription API.
	APIKey string

	// Language hints the expected challenge audio language.
	Language string // default: "en"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("DORKHOUND_HOST", "0.0.0.0"),
			Port: envIntOr("DORKHOUND_PORT", 8080),
			Mode: envOr("DORKHOUND_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("DORKHOUND_HEADLESS", true),
			NoSandbox:      envBoolOr("DORKHOUND_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("DORKHOUND_BROWSER_BIN"),
			UserAgent:      os.Getenv("DORKHOUND_USER_AGENT"),
			ViewportWidth:  envIntOr("DORKHOUND_VIEWPORT_WIDTH", 1366),
			ViewportHeight: envIntOr("DORKHOUND_VIEWPORT_HEIGHT", 768),
			AllowImages:    envBoolOr("DORKHOUND_ALLOW_IMAGES", false),
		},
		Search: SearchConfig{
			MaxResults:        envIntOr("DORKHOUND_MAX_RESULTS", 30),
			RestartThreshold:  envIntOr("DORKHOUND_RESTART_THRESHOLD", 5),
			NavigationTimeout: envDurationOr("DORKHOUND_NAV_TIMEOUT", 30*time.Second),
			ElementTimeout:    envDurationOr("DORKHOUND_ELEMENT_TIMEOUT", 5*time.Second),
			QueriesPerMinute:  envFloatOr("DORKHOUND_QUERIES_PER_MINUTE", 6),
		},
		Captcha: CaptchaConfig{
			Mode:             envOr("DORKHOUND_CAPTCHA_MODE", "auto"),
			WatchdogInterval: envDurationOr("DORKHOUND_WATCHDOG_INTERVAL", 2*time.Second),
			AudioDir:         os.Getenv("DORKHOUND_AUDIO_DIR"),
		},
		Proxy: ProxyConfig{
			Enabled:   envBoolOr("DORKHOUND_PROXY_ENABLED", false),
			APIBase:   os.Getenv("DORKHOUND_PROXY_API"),
			APIKey:    os.Getenv("DORKHOUND_PROXY_API_KEY"),
			LeaseType: envOr("DORKHOUND_PROXY_LEASE_TYPE", "residential"),
		},
		Transcribe: TranscribeConfig{
			APIURL:   os.Getenv("DORKHOUND_TRANSCRIBE_API"),
			APIKey:   os.Getenv("DORKHOUND_TRANSCRIBE_API_KEY"),
			Language: envOr("DORKHOUND_TRANSCRIBE_LANGUAGE", "en"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("DORKHOUND_AUTH_ENABLED", true),
			APIKeys: envSliceOr("DORKHOUND_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("DORKHOUND_RATE_RPS", 1.0),
			Burst:             envIntOr("DORKHOUND_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("DORKHOUND_LOG_LEVEL", "info"),
			Format: envOr("DORKHOUND_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
