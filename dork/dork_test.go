package dork

import (
	"testing"

	"github.com/use-agent/dorkhound/models"
)

func result(url, title, desc string) models.SearchResult {
	return models.SearchResult{URL: url, Title: title, Description: desc}
}

func urls(results []models.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL
	}
	return out
}

func TestParse_Operators(t *testing.T) {
	tests := []struct {
		name      string
		dork      string
		wantType  PatternType
		wantValue string
	}{
		{"site", "site:example.com", TypeSite, "example.com"},
		{"filetype", "filetype:pdf", TypeFiletype, "pdf"},
		{"ext alias", "ext:sql", TypeFiletype, "sql"},
		{"fileext alias", "fileext:log", TypeFiletype, "log"},
		{"inurl", "inurl:admin", TypeInURL, "admin"},
		{"intitle quoted", `intitle:"index of"`, TypeInTitle, "index of"},
		{"allintitle alias", "allintitle:backup", TypeInTitle, "backup"},
		{"intext", "intext:password", TypeInText, "password"},
		{"inbody alias", "inbody:confidential", TypeInText, "confidential"},
		{"inanchor", "inanchor:login", TypeInAnchor, "login"},
		{"cache", "cache:example.com", TypeCache, "example.com"},
		{"before", "before:2020-01-01", TypeBefore, "2020-01-01"},
		{"numrange", "numrange:100-200", TypeNumRange, "100-200"},
		{"bing contains", "contains:pdf", TypeContains, "pdf"},
		{"bing ip", "ip:10.0.0.1", TypeIP, "10.0.0.1"},
		{"ddg region", "region:de", TypeRegion, "de"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.dork)
			if len(got) != 1 {
				t.Fatalf("Parse(%q) = %d patterns, want 1", tt.dork, len(got))
			}
			if got[0].Type != tt.wantType || got[0].Value != tt.wantValue {
				t.Errorf("Parse(%q) = {%s %q}, want {%s %q}",
					tt.dork, got[0].Type, got[0].Value, tt.wantType, tt.wantValue)
			}
		})
	}
}

func TestParse_NegationCarriesOriginalType(t *testing.T) {
	got := Parse("-inurl:public")
	if len(got) != 1 {
		t.Fatalf("got %d patterns, want 1", len(got))
	}
	if got[0].Type != TypeExclude {
		t.Errorf("Type = %s, want exclude", got[0].Type)
	}
	if got[0].Negated != TypeInURL {
		t.Errorf("Negated = %s, want inurl", got[0].Negated)
	}
	if got[0].Value != "public" {
		t.Errorf("Value = %q, want %q", got[0].Value, "public")
	}
}

func TestParse_PhrasesRequiredAndBareWords(t *testing.T) {
	got := Parse(`"error log" +debug -staging trace`)

	byType := map[PatternType][]Pattern{}
	for _, p := range got {
		byType[p.Type] = append(byType[p.Type], p)
	}
	if len(byType[TypePhrase]) != 1 || byType[TypePhrase][0].Value != "error log" {
		t.Errorf("phrase patterns = %+v, want one with value %q", byType[TypePhrase], "error log")
	}
	if len(byType[TypeRequired]) != 2 {
		t.Fatalf("required patterns = %+v, want 2 (+debug and bare trace)", byType[TypeRequired])
	}
	if len(byType[TypeExclude]) != 1 || byType[TypeExclude][0].Value != "staging" {
		t.Errorf("exclude patterns = %+v, want one with value %q", byType[TypeExclude], "staging")
	}
	if byType[TypeExclude][0].Negated != TypeRequired {
		t.Errorf("bare-word exclusion Negated = %s, want required", byType[TypeExclude][0].Negated)
	}
}

func TestParse_LogicalTokensCarryPosition(t *testing.T) {
	dork := "inurl:admin OR inurl:login"
	got := Parse(dork)

	var logical []Pattern
	for _, p := range got {
		if p.Type == TypeLogical {
			logical = append(logical, p)
		}
	}
	if len(logical) != 1 {
		t.Fatalf("logical patterns = %d, want 1", len(logical))
	}
	if logical[0].Value != "OR" {
		t.Errorf("logical value = %q, want OR", logical[0].Value)
	}
	if logical[0].Pos != 12 {
		t.Errorf("logical pos = %d, want 12", logical[0].Pos)
	}
}

func TestParse_EveryPatternHasValue(t *testing.T) {
	for _, dork := range []string{"site: inurl:", `"" - +`, "   ", ""} {
		for _, p := range Parse(dork) {
			if p.Type != TypeLogical && p.Value == "" {
				t.Errorf("Parse(%q) produced empty-valued pattern %+v", dork, p)
			}
		}
	}
}

func TestFilter_ANDDefault(t *testing.T) {
	results := []models.SearchResult{
		result("https://a.com/admin/x.php", "Admin panel", ""),
		result("https://a.com/admin/x.html", "Admin panel", ""),
		result("https://a.com/other/x.php", "Other", ""),
	}
	got := Filter(results, "inurl:admin filetype:php")
	if len(got) != 1 || got[0].URL != "https://a.com/admin/x.php" {
		t.Errorf("Filter = %v, want only admin/x.php", urls(got))
	}
}

func TestFilter_SameTypeIsDisjunctive(t *testing.T) {
	results := []models.SearchResult{
		result("https://a.com/admin/index", "", ""),
		result("https://a.com/login/index", "", ""),
		result("https://a.com/public/index", "", ""),
	}
	got := Filter(results, "inurl:admin inurl:login")
	if len(got) != 2 {
		t.Errorf("Filter = %v, want admin and login results", urls(got))
	}
}

func TestFilter_ORGroupsWithTrailingDiscriminator(t *testing.T) {
	results := []models.SearchResult{
		result("https://a.com/admin/x.php", "", ""),
		result("https://a.com/login/x.php", "", ""),
		result("https://a.com/login/x.html", "", ""),
		result("https://a.com/other/x.php", "", ""),
	}
	got := Filter(results, "inurl:admin OR inurl:login filetype:php")

	want := map[string]bool{
		"https://a.com/admin/x.php": true,
		"https://a.com/login/x.php": true,
	}
	if len(got) != 2 {
		t.Fatalf("Filter = %v, want exactly the two .php admin/login results", urls(got))
	}
	for _, r := range got {
		if !want[r.URL] {
			t.Errorf("unexpected result %s", r.URL)
		}
	}
}

func TestFilter_ORWithoutSpanningTypeKeepsAlternatives(t *testing.T) {
	results := []models.SearchResult{
		result("https://a.com/admin/page", "Welcome", ""),
		result("https://a.com/page", "login here", ""),
		result("https://a.com/other", "nothing", ""),
	}
	got := Filter(results, "inurl:admin OR intitle:login")
	if len(got) != 2 {
		t.Errorf("Filter = %v, want both alternatives to match", urls(got))
	}
}

func TestFilter_ExclusionVeto(t *testing.T) {
	results := []models.SearchResult{
		result("https://example.com/public/doc.pdf", "Doc", ""),
		result("https://example.com/private/doc.pdf", "Doc", ""),
	}
	got := Filter(results, "site:example.com -inurl:public ext:pdf")
	if len(got) != 1 || got[0].URL != "https://example.com/private/doc.pdf" {
		t.Errorf("Filter = %v, want exclusion to veto the public doc", urls(got))
	}
}

func TestFilter_ORBetweenExclusionsVetoesOnly(t *testing.T) {
	results := []models.SearchResult{
		result("https://a.com/public/doc", "Doc", ""),
		result("https://a.com/private/doc", "Doc", ""),
		result("https://a.com/archive/doc", "Doc", ""),
		result("https://a.com/reports/doc", "Doc", ""),
	}
	got := Filter(results, "-inurl:public OR -inurl:private")

	want := map[string]bool{
		"https://a.com/archive/doc": true,
		"https://a.com/reports/doc": true,
	}
	if len(got) != 2 {
		t.Fatalf("Filter = %v, want the two non-excluded results kept", urls(got))
	}
	for _, r := range got {
		if !want[r.URL] {
			t.Errorf("unexpected result %s", r.URL)
		}
	}
}

func TestFilter_NoPatternsFailsOpen(t *testing.T) {
	results := []models.SearchResult{
		result("https://a.com/1", "one", ""),
		result("https://b.com/2", "two", ""),
		result("https://c.com/3", "three", ""),
	}
	got := Filter(results, "   ")
	if len(got) != len(results) {
		t.Fatalf("Filter = %d results, want %d unchanged", len(got), len(results))
	}
	for i := range got {
		if got[i].URL != results[i].URL {
			t.Errorf("order changed at %d: %s != %s", i, got[i].URL, results[i].URL)
		}
	}
}

func TestMatches_Site(t *testing.T) {
	tests := []struct {
		url  string
		site string
		want bool
	}{
		{"https://example.com/x", "example.com", true},
		{"https://sub.example.com/x", "example.com", true},
		{"https://www.example.com/x", "example.com", true},
		{"https://example.org/x", "example.com", false},
		{"https://notexample.com/x", "example.com", false},
		{"https://data.gov/report", "gov", true},
	}
	for _, tt := range tests {
		p := Pattern{Type: TypeSite, Value: tt.site}
		if got := Matches(result(tt.url, "", ""), p); got != tt.want {
			t.Errorf("Matches(%s, site:%s) = %v, want %v", tt.url, tt.site, got, tt.want)
		}
	}
}

func TestMatches_FiletypeIsExact(t *testing.T) {
	p := Pattern{Type: TypeFiletype, Value: "php"}
	if !Matches(result("https://a.com/x.php", "", ""), p) {
		t.Error("x.php should match filetype:php")
	}
	if Matches(result("https://a.com/x.php.bak", "", ""), p) {
		t.Error("x.php.bak should not match filetype:php (last extension only)")
	}
	if Matches(result("https://a.com/x.html?f=.php", "", ""), p) {
		t.Error("query string must not influence filetype matching")
	}
}

func TestMatches_UnknownTypeFallsBackToFullText(t *testing.T) {
	p := Pattern{Type: TypeInAnchor, Value: "download"}
	if !Matches(result("https://a.com/x", "Download center", ""), p) {
		t.Error("inanchor should fall back to the url+title+description check")
	}
}
