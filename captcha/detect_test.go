package captcha

import "testing"

func TestDetectInURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.google.com/sorry/index?continue=https://www.google.com/search", true},
		{"https://www.bing.com/search?q=test", false},
		{"https://duckduckgo.com/?q=x&captcha=1", true},
		{"https://example.com/challenge/verify", true},
		{"https://www.google.com/search?q=recap", false},
	}
	for _, tt := range tests {
		if got := DetectInURL(tt.url); got != tt.want {
			t.Errorf("DetectInURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestDetectInTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Before you continue - CAPTCHA", true},
		{"Unusual traffic detected", true},
		{"Just a moment...", true},
		{"test - Google Search", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := DetectInTitle(tt.title); got != tt.want {
			t.Errorf("DetectInTitle(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestDetectInBody(t *testing.T) {
	positive := "Our systems have detected unusual traffic from your computer network. " +
		"Please verify that you are not a robot."
	if !DetectInBody(positive) {
		t.Error("interstitial wording must be detected")
	}
	if DetectInBody("10 results for site:example.com filetype:pdf") {
		t.Error("ordinary result page text must not trip detection")
	}
}

func TestParseTranscript(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"single object", `{"text": "seven four one"}`, "seven four one"},
		{"streamed chunks keep last", `{"text": "seven"} {"text": "seven four one"}`, "seven four one"},
		{"blank text", `{"text": "  "}`, ""},
		{"garbage", `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTranscript([]byte(tt.body)); got != tt.want {
				t.Errorf("parseTranscript = %q, want %q", got, tt.want)
			}
		})
	}
}
