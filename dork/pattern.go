package dork

import (
	"regexp"
	"strings"
)

// PatternType identifies the semantics of one parsed dork pattern.
type PatternType string

const (
	TypeSite     PatternType = "site"
	TypeFiletype PatternType = "filetype"
	TypeInURL    PatternType = "inurl"
	TypeInTitle  PatternType = "intitle"
	TypeInText   PatternType = "intext"
	TypeInAnchor PatternType = "inanchor"
	TypeCache    PatternType = "cache"
	TypeBefore   PatternType = "before"
	TypeAfter    PatternType = "after"
	TypeNumRange PatternType = "numrange"
	TypeContains PatternType = "contains" // Bing
	TypeIP       PatternType = "ip"       // Bing
	TypeFeed     PatternType = "feed"     // Bing
	TypeRegion   PatternType = "region"   // DuckDuckGo
	TypePhrase   PatternType = "phrase"
	TypeRequired PatternType = "required"
	TypeExclude  PatternType = "exclude"
	TypeLogical  PatternType = "logical"
)

// Pattern is one typed element of a dork query.
//
// Exclude patterns keep the positive operator in Negated so matching can
// run the positive check first and invert the outcome. Logical patterns
// carry their position so the filter can split OR groups.
type Pattern struct {
	Type     PatternType
	Value    string
	Original string
	Pos      int

	// Negated holds the positive pattern type for Type == TypeExclude.
	Negated PatternType
}

// operatorAliases maps every recognized operator spelling to its canonical
// pattern type. Engine-specific spellings (ext, inbody, contains...) fold
// into the shared semantics.
var operatorAliases = map[string]PatternType{
	"site":       TypeSite,
	"filetype":   TypeFiletype,
	"ext":        TypeFiletype,
	"fileext":    TypeFiletype,
	"inurl":      TypeInURL,
	"intitle":    TypeInTitle,
	"allintitle": TypeInTitle,
	"intext":     TypeInText,
	"allintext":  TypeInText,
	"inbody":     TypeInText,
	"inanchor":   TypeInAnchor,
	"cache":      TypeCache,
	"before":     TypeBefore,
	"after":      TypeAfter,
	"numrange":   TypeNumRange,
	"contains":   TypeContains,
	"ip":         TypeIP,
	"feed":       TypeFeed,
	"region":     TypeRegion,
}

var (
	reOperator = regexp.MustCompile(`(?i)(-?)\b(site|filetype|fileext|ext|inurl|intitle|allintitle|intext|allintext|inbody|inanchor|cache|before|after|numrange|contains|ip|feed|region):("[^"]*"|\S+)`)
	rePhrase   = regexp.MustCompile(`(-?)"([^"]+)"`)
	reLogical  = regexp.MustCompile(`(?i)(?:^|\s)(OR|AND)(?:\s|$)`)
)

// Parse scans a dork string and returns its typed patterns in source order
// of recognition: operators first, then leftover quoted phrases, logical
// tokens, and finally bare terms. Empty-valued operators are dropped so
// the invariant "every non-logical pattern has a non-empty value" holds.
func Parse(dork string) []Pattern {
	var patterns []Pattern

	// Masked copy: recognized spans are blanked with spaces so later
	// passes cannot re-consume them while offsets stay stable.
	masked := []byte(dork)

	for _, m := range reOperator.FindAllStringSubmatchIndex(dork, -1) {
		neg := dork[m[2]:m[3]] == "-"
		op := strings.ToLower(dork[m[4]:m[5]])
		value := strings.Trim(dork[m[6]:m[7]], `"`)
		blank(masked, m[0], m[1])

		pt, ok := operatorAliases[op]
		if !ok || value == "" {
			continue
		}
		p := Pattern{
			Type:     pt,
			Value:    value,
			Original: dork[m[0]:m[1]],
			Pos:      m[0],
		}
		if neg {
			p.Negated = pt
			p.Type = TypeExclude
		}
		patterns = append(patterns, p)
	}

	rest := string(masked)
	for _, m := range rePhrase.FindAllStringSubmatchIndex(rest, -1) {
		neg := rest[m[2]:m[3]] == "-"
		value := rest[m[4]:m[5]]
		blank(masked, m[0], m[1])

		if strings.TrimSpace(value) == "" {
			continue
		}
		p := Pattern{
			Type:     TypePhrase,
			Value:    value,
			Original: rest[m[0]:m[1]],
			Pos:      m[0],
		}
		if neg {
			p.Negated = TypePhrase
			p.Type = TypeExclude
		}
		patterns = append(patterns, p)
	}

	rest = string(masked)
	for _, m := range reLogical.FindAllStringSubmatchIndex(rest, -1) {
		patterns = append(patterns, Pattern{
			Type:     TypeLogical,
			Value:    strings.ToUpper(rest[m[2]:m[3]]),
			Original: rest[m[2]:m[3]],
			Pos:      m[2],
		})
		blank(masked, m[2], m[3])
	}

	// Whatever is left is bare terms: "+term" is an explicit requirement,
	// "-term" excludes, anything else is required by default.
	patterns = append(patterns, parseBareTerms(string(masked))...)

	return patterns
}

// parseBareTerms tokenizes the unconsumed remainder of the dork string.
func parseBareTerms(masked string) []Pattern {
	var patterns []Pattern
	pos := 0
	for pos < len(masked) {
		if masked[pos] == ' ' || masked[pos] == '\t' {
			pos++
			continue
		}
		end := pos
		for end < len(masked) && masked[end] != ' ' && masked[end] != '\t' {
			end++
		}
		word := masked[pos:end]
		start := pos
		pos = end

		p := Pattern{Type: TypeRequired, Original: word, Pos: start}
		switch {
		case strings.HasPrefix(word, "-") && len(word) > 1:
			p.Type = TypeExclude
			p.Negated = TypeRequired
			p.Value = word[1:]
		case strings.HasPrefix(word, "+") && len(word) > 1:
			p.Value = word[1:]
		default:
			p.Value = word
		}
		if p.Value == "" || p.Value == "-" || p.Value == "+" {
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns
}

func blank(b []byte, from, to int) {
	for i := from; i < to && i < len(b); i++ {
		b[i] = ' '
	}
}
