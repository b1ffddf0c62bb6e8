package store

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Aman-CERP/mediadex/internal/media"
)

// QueryTerms splits a free-text query on whitespace and reduces each word to
// its runs of letters and digits, lowercased. "arrow-right" yields "arrow"
// and "right"; punctuation-only words yield nothing.
func QueryTerms(query string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(query) {
		for _, run := range alnumRuns(word) {
			lower := strings.ToLower(run)
			if _, ok := seen[lower]; ok {
				continue
			}
			seen[lower] = struct{}{}
			terms = append(terms, lower)
		}
	}
	return terms
}

// alnumRuns returns the maximal letter/digit substrings of s.
func alnumRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ftsMatchExpr builds an FTS5 MATCH expression: every term as a quoted
// prefix token, OR-combined. Returns "" when there is nothing to match.
func ftsMatchExpr(terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(parts, " OR ")
}

// likeContains returns a LIKE pattern matching s anywhere, with % and _
// escaped by backslash.
func likeContains(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}

// wildcardContains returns a bleve wildcard pattern matching s anywhere.
// A '*' or '?' inside s degrades to a single-character match.
func wildcardContains(s string) string {
	return "*" + strings.ReplaceAll(strings.ToLower(s), "*", "?") + "*"
}

// selectByName keeps the items req selects, sorted and capped. Matching
// lowercases both sides so it folds beyond ASCII.
func selectByName(items []*media.Item, req NameRequest) []*media.Item {
	needle := strings.ToLower(strings.TrimSpace(req.Name))
	out := make([]*media.Item, 0, len(items))
	for _, it := range items {
		if req.SourceID != "" && it.SourceID != req.SourceID {
			continue
		}
		if req.Style != "" && it.Style != req.Style {
			continue
		}
		if !strings.Contains(strings.ToLower(it.Canonical()), needle) {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Canonical() != b.Canonical() {
			return a.Canonical() < b.Canonical()
		}
		if a.Style != b.Style {
			return a.Style < b.Style
		}
		return a.ID() < b.ID()
	})
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
