package browser

import (
	"testing"

	"github.com/use-agent/dorkhound/engine"
)

func googleProfile() *engine.Profile { return engine.Profiles["google"] }

func TestCanonicalURL_Idempotent(t *testing.T) {
	encoded := "https://example.com/a%2520b" // double-encoded space
	once := CanonicalURL(encoded)
	twice := CanonicalURL(once)
	if once != twice {
		t.Errorf("canonicalization not idempotent: %q -> %q -> %q", encoded, once, twice)
	}
	if once != "https://example.com/a b" {
		t.Errorf("double encoding not resolved to fixpoint: %q", once)
	}
}

func TestCanonicalURL_DropsFragment(t *testing.T) {
	got := CanonicalURL("https://example.com/page#section")
	if got != "https://example.com/page" {
		t.Errorf("CanonicalURL = %q, want fragment stripped", got)
	}
}

func TestDecodeRedirect(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
		ok   bool
	}{
		{
			"google url wrapper",
			"/url?q=https://target.example/doc.pdf&sa=U&ved=xyz",
			"https://target.example/doc.pdf",
			true,
		},
		{
			"google wrapper with entities",
			"/url?q=https://target.example/a&amp;q=ignored",
			"https://target.example/a",
			true,
		},
		{
			"ddg uddg wrapper",
			"https://duckduckgo.com/l/?uddg=https%3A%2F%2Ftarget.example%2Fx",
			"https://target.example/x",
			true,
		},
		{
			"plain link is not a wrapper",
			"https://target.example/direct",
			"",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeRedirect(tt.href)
			if ok != tt.ok || got != tt.want {
				t.Errorf("DecodeRedirect(%q) = (%q, %v), want (%q, %v)",
					tt.href, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestExtractFromHTML_ProfileLayer(t *testing.T) {
	html := `<html><body>
		<div class="g">
			<a href="https://one.example/a"><h3>First hit</h3></a>
			<div class="VwiC3b">snippet one</div>
		</div>
		<div class="g">
			<a href="https://two.example/b"><h3>Second hit</h3></a>
			<div class="VwiC3b">snippet two</div>
		</div>
	</body></html>`

	got := ExtractFromHTML(html, googleProfile(), 10)
	if len(got) != 2 {
		t.Fatalf("extracted %d results, want 2: %+v", len(got), got)
	}
	if got[0].URL != "https://one.example/a" || got[0].Title != "First hit" {
		t.Errorf("first result = %+v", got[0])
	}
	if got[0].Description != "snippet one" {
		t.Errorf("description = %q", got[0].Description)
	}
	if got[0].Engine != "google" {
		t.Errorf("engine tag = %q, want google", got[0].Engine)
	}
}

func TestExtractFromHTML_RedirectLayerDedupsWrappers(t *testing.T) {
	// No profile containers present, so layer 2 takes over. The same
	// destination appears behind two differently-encoded wrappers and
	// must collapse to one result.
	html := `<html><body>
		<a href="/url?q=https%3A%2F%2Ftarget.example%2Fdoc">wrapped once</a>
		<a href="/url?q=https://target.example/doc&amp;ved=2">wrapped differently</a>
		<a href="/url?q=https://google.com/internal">internal</a>
	</body></html>`

	got := ExtractFromHTML(html, googleProfile(), 10)
	if len(got) != 1 {
		t.Fatalf("extracted %d results, want 1 after dedup: %+v", len(got), got)
	}
	if got[0].URL != "https://target.example/doc" {
		t.Errorf("url = %q", got[0].URL)
	}
}

func TestExtractFromHTML_RawAnchorLastResort(t *testing.T) {
	html := `<html><body>
		<p><a href="https://plain.example/page">Plain result</a></p>
		<p><a href="https://google.com/preferences">settings</a></p>
		<p><a href="/relative">relative</a></p>
	</body></html>`

	got := ExtractFromHTML(html, googleProfile(), 10)
	if len(got) != 1 {
		t.Fatalf("extracted %d results, want 1: %+v", len(got), got)
	}
	if got[0].URL != "https://plain.example/page" || got[0].Title != "Plain result" {
		t.Errorf("result = %+v", got[0])
	}
}

func TestExtractFromHTML_CapsAtMax(t *testing.T) {
	html := `<html><body>
		<div class="g"><a href="https://a.example/1"><h3>r1</h3></a></div>
		<div class="g"><a href="https://a.example/2"><h3>r2</h3></a></div>
		<div class="g"><a href="https://a.example/3"><h3>r3</h3></a></div>
	</body></html>`
	got := ExtractFromHTML(html, googleProfile(), 2)
	if len(got) != 2 {
		t.Errorf("extracted %d results, want cap of 2", len(got))
	}
}

func TestIsInternalHost(t *testing.T) {
	internal := []string{"google.com", "gstatic.com"}
	if !isInternalHost("www.google.com", internal) {
		t.Error("subdomain of internal host should be internal")
	}
	if isInternalHost("notgoogle.com", internal) {
		t.Error("suffix-overlapping host must not be internal")
	}
}
