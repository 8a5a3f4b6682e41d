package dork

import (
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/use-agent/dorkhound/models"
	"golang.org/x/net/publicsuffix"
)

// Filter reduces a raw result set to those satisfying the dork's boolean
// semantics.
//
// Rules, in order of precedence:
//   - a result matching any exclude pattern is dropped, always;
//   - with OR groups, a result must match every pattern type in at least
//     one group;
//   - without OR groups, for every distinct pattern type at least one
//     pattern of that type must match (same-type patterns are OR'd,
//     distinct types are AND'd).
//
// Operators of one kind are naturally disjunctive (two inurl: terms read
// as "either") while different kinds narrow the set; exclusion is an
// absolute veto. Any internal panic fails open: the unfiltered input is
// returned so data is never silently lost.
func Filter(results []models.SearchResult, dork string) (filtered []models.SearchResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("dork filter panicked, returning unfiltered results",
				"dork", dork, "panic", r)
			filtered = results
		}
	}()

	patterns := Parse(dork)
	if len(patterns) == 0 {
		slog.Debug("no filterable pattern in dork, passing results through", "dork", dork)
		return results
	}

	var excludes, includes []Pattern
	hasOR := false
	for _, p := range patterns {
		switch p.Type {
		case TypeExclude:
			excludes = append(excludes, p)
		case TypeLogical:
			if p.Value == "OR" {
				hasOR = true
			}
		default:
			includes = append(includes, p)
		}
	}

	var groups [][]Pattern
	if hasOR {
		groups = splitORGroups(patterns, includes)
		// An OR joining only exclusions leaves no include groups; treat
		// it as the flat case so the veto alone decides and non-excluded
		// results survive.
		if len(groups) == 0 {
			hasOR = false
		}
	}

	filtered = make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		if matchesAny(r, excludes) {
			slog.Debug("result rejected by exclude pattern", "url", r.URL)
			continue
		}
		if hasOR {
			if matchesAnyGroup(r, groups) {
				filtered = append(filtered, r)
			} else {
				slog.Debug("result rejected: no OR group satisfied", "url", r.URL)
			}
			continue
		}
		if matchesAllTypes(r, includes) {
			filtered = append(filtered, r)
		} else {
			slog.Debug("result rejected: pattern type unmatched", "url", r.URL)
		}
	}
	return filtered
}

// splitORGroups partitions the include patterns into OR groups by source
// position: everything between two consecutive OR tokens forms one group.
//
// A pattern type that occurs in exactly one group while another type spans
// several groups is read as a global discriminator written once for the
// whole expression (a trailing filetype: after the last OR branch) and is
// replicated into every group. When no type spans multiple groups the
// groups are genuine alternatives and nothing is replicated.
func splitORGroups(all, includes []Pattern) [][]Pattern {
	var orPositions []int
	for _, p := range all {
		if p.Type == TypeLogical && p.Value == "OR" {
			orPositions = append(orPositions, p.Pos)
		}
	}
	sort.Ints(orPositions)

	sorted := make([]Pattern, len(includes))
	copy(sorted, includes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pos < sorted[j].Pos })

	groups := make([][]Pattern, len(orPositions)+1)
	for _, p := range sorted {
		g := 0
		for _, op := range orPositions {
			if p.Pos > op {
				g++
			}
		}
		groups[g] = append(groups[g], p)
	}

	// Drop empty groups (leading/trailing OR noise).
	compact := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			compact = append(compact, g)
		}
	}
	groups = compact
	if len(groups) < 2 {
		return groups
	}

	typeGroups := make(map[PatternType]map[int]struct{})
	for gi, g := range groups {
		for _, p := range g {
			if typeGroups[p.Type] == nil {
				typeGroups[p.Type] = make(map[int]struct{})
			}
			typeGroups[p.Type][gi] = struct{}{}
		}
	}

	spanning := false
	for _, seen := range typeGroups {
		if len(seen) > 1 {
			spanning = true
			break
		}
	}
	if !spanning {
		return groups
	}

	for t, seen := range typeGroups {
		if len(seen) != 1 {
			continue
		}
		var global []Pattern
		for _, g := range groups {
			for _, p := range g {
				if p.Type == t {
					global = append(global, p)
				}
			}
		}
		for gi := range groups {
			if _, ok := seen[gi]; ok {
				continue
			}
			groups[gi] = append(groups[gi], global...)
		}
	}
	return groups
}

func matchesAny(r models.SearchResult, patterns []Pattern) bool {
	for _, p := range patterns {
		if Matches(r, p) {
			return true
		}
	}
	return false
}

// matchesAnyGroup reports whether the result satisfies every pattern of at
// least one OR group. Inside a group, same-type patterns are OR'd and the
// distinct types AND'd, same as the flat case.
func matchesAnyGroup(r models.SearchResult, groups [][]Pattern) bool {
	for _, g := range groups {
		if matchesAllTypes(r, g) {
			return true
		}
	}
	return false
}

func matchesAllTypes(r models.SearchResult, patterns []Pattern) bool {
	byType := make(map[PatternType][]Pattern)
	for _, p := range patterns {
		byType[p.Type] = append(byType[p.Type], p)
	}
	for _, ps := range byType {
		if !matchesAny(r, ps) {
			return false
		}
	}
	return true
}

// Matches reports whether a single pattern accepts the result. For exclude
// patterns the positive semantics carried in Negated are evaluated; the
// caller inverts the outcome by dropping matches.
func Matches(r models.SearchResult, p Pattern) bool {
	t := p.Type
	if t == TypeExclude {
		t = p.Negated
	}
	value := strings.ToLower(p.Value)

	switch t {
	case TypeSite:
		return matchesSite(r.URL, value)
	case TypeFiletype:
		return urlExtension(r.URL) == strings.TrimPrefix(value, ".")
	case TypeInURL:
		return strings.Contains(strings.ToLower(r.URL), value)
	case TypeInTitle:
		return strings.Contains(strings.ToLower(r.Title), value)
	case TypeInText:
		return strings.Contains(strings.ToLower(r.Description), value)
	default:
		// phrase, required, and operators with no per-field semantics all
		// fall back to the full-text check over url+title+description.
		haystack := strings.ToLower(r.URL + " " + r.Title + " " + r.Description)
		return strings.Contains(haystack, value)
	}
}

// matchesSite compares the result's hostname against the site: value.
// Exact host, subdomain-of, and shared registrable domain all count.
func matchesSite(rawURL, site string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	site = strings.TrimSuffix(strings.TrimPrefix(site, "www."), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" || site == "" {
		return false
	}
	if host == site || strings.HasSuffix(host, "."+site) {
		return true
	}
	hostReg, err1 := publicsuffix.EffectiveTLDPlusOne(host)
	siteReg, err2 := publicsuffix.EffectiveTLDPlusOne(site)
	if err1 != nil || err2 != nil {
		return false
	}
	return hostReg == siteReg
}

// urlExtension returns the lowercase extension of the URL path, without
// the leading dot.
func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
